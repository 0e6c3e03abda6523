package ml

import (
	"fmt"

	"wildfire-rf/internal/common"
)

// Confusion counts held-out outcomes with class 1 as positive.
type Confusion struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

func (c Confusion) Total() int { return c.TN + c.FP + c.FN + c.TP }

// ClassStats are precision, recall and F1 of one class. Ratios with a zero
// denominator are reported as 0.
type ClassStats struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type Report struct {
	Accuracy    float64        `json:"accuracy"`
	Confusion   Confusion      `json:"confusion"`
	Classes     [2]ClassStats  `json:"classes"`
	MacroAvg    ClassStats     `json:"macro_avg"`
	WeightedAvg ClassStats     `json:"weighted_avg"`
	Importances []FeatureScore `json:"importances"`
	TrainRows   int            `json:"train_rows"`
	TestRows    int            `json:"test_rows"`
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Score compares predictions against true labels.
func Score(pred, actual []int) (Report, error) {
	if len(pred) != len(actual) {
		return Report{}, fmt.Errorf("score: %w: %d predictions for %d labels", common.ErrDataShape, len(pred), len(actual))
	}
	if len(actual) == 0 {
		return Report{}, fmt.Errorf("score: %w: no held-out rows", common.ErrEmptyDataset)
	}

	var c Confusion
	for i := range actual {
		switch {
		case actual[i] == 1 && pred[i] == 1:
			c.TP++
		case actual[i] == 1:
			c.FN++
		case pred[i] == 1:
			c.FP++
		default:
			c.TN++
		}
	}

	r := Report{Confusion: c, TestRows: len(actual)}
	r.Accuracy = ratio(c.TP+c.TN, c.Total())

	neg := ClassStats{Precision: ratio(c.TN, c.TN+c.FN), Recall: ratio(c.TN, c.TN+c.FP), Support: c.TN + c.FP}
	pos := ClassStats{Precision: ratio(c.TP, c.TP+c.FP), Recall: ratio(c.TP, c.TP+c.FN), Support: c.TP + c.FN}
	neg.F1 = f1(neg.Precision, neg.Recall)
	pos.F1 = f1(pos.Precision, pos.Recall)
	r.Classes = [2]ClassStats{neg, pos}

	total := float64(neg.Support + pos.Support)
	r.MacroAvg = ClassStats{
		Precision: (neg.Precision + pos.Precision) / 2,
		Recall:    (neg.Recall + pos.Recall) / 2,
		F1:        (neg.F1 + pos.F1) / 2,
		Support:   neg.Support + pos.Support,
	}
	r.WeightedAvg = ClassStats{
		Precision: (neg.Precision*float64(neg.Support) + pos.Precision*float64(pos.Support)) / total,
		Recall:    (neg.Recall*float64(neg.Support) + pos.Recall*float64(pos.Support)) / total,
		F1:        (neg.F1*float64(neg.Support) + pos.F1*float64(pos.Support)) / total,
		Support:   neg.Support + pos.Support,
	}
	return r, nil
}
