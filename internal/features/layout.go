// Package features turns a sample's channel tiles into one feature vector
// and a binary label.
package features

import (
	"fmt"

	"wildfire-rf/internal/common"
)

// Layout fixes the position of every feature channel in a feature vector and
// names the channel that carries the label. One Layout is shared by every
// sample in a dataset.
type Layout struct {
	features []string
	label    string
	index    map[string]int
}

func NewLayout(featureChannels []string, labelChannel string) (*Layout, error) {
	if labelChannel == "" {
		return nil, fmt.Errorf("%w: label channel cannot be empty", common.ErrInvalidConfiguration)
	}
	if len(featureChannels) == 0 {
		return nil, fmt.Errorf("%w: at least one feature channel is required", common.ErrInvalidConfiguration)
	}

	l := &Layout{
		features: append([]string(nil), featureChannels...),
		label:    labelChannel,
		index:    make(map[string]int, len(featureChannels)),
	}
	for i, name := range featureChannels {
		if name == labelChannel {
			return nil, fmt.Errorf("%w: label channel %q listed as a feature", common.ErrInvalidConfiguration, name)
		}
		if _, dup := l.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate channel %q", common.ErrInvalidConfiguration, name)
		}
		l.index[name] = i
	}
	return l, nil
}

// Features returns the feature channel names in vector order.
func (l *Layout) Features() []string {
	return append([]string(nil), l.features...)
}

func (l *Layout) Label() string { return l.label }

// Len is the feature vector length.
func (l *Layout) Len() int { return len(l.features) }

// Channels lists feature channels followed by the label channel.
func (l *Layout) Channels() []string {
	return append(l.Features(), l.label)
}

// Position returns the vector index of a feature channel.
func (l *Layout) Position(channel string) (int, bool) {
	i, ok := l.index[channel]
	return i, ok
}
