package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWheelAccumulator(t *testing.T) {
	tests := []struct {
		name   string
		deltas []int
		want   []int
	}{
		{"standard detents", []int{120, -120, 240}, []int{1, -1, 2}},
		{"fine scroll adds up", []int{40, 40, 40, 40}, []int{0, 0, 1, 0}},
		{"fine scroll down", []int{-60, -60, -30}, []int{0, -1, 0}},
		{"direction change drops remainder", []int{100, -30, -90}, []int{0, 0, -1}},
		{"remainder after detent", []int{150, 90}, []int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w wheelAccumulator
			var got []int
			for _, d := range tt.deltas {
				got = append(got, w.add(d))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
