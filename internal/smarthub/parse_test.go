package smarthub

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want float64
	}{
		{
			name: "bare cell",
			html: `<td class="highcharts-tooltip">42.5</td>`,
			want: 42.5,
		},
		{
			name: "inside table",
			html: `<html><body><table><tr><td>kWh</td><td class="highcharts-tooltip">1234.56</td></tr></table></body></html>`,
			want: 1234.56,
		},
		{
			name: "surrounding whitespace",
			html: "<td class=\"highcharts-tooltip\">\n\t  17.25 \n</td>",
			want: 17.25,
		},
		{
			name: "multiple classes",
			html: `<td class="cell highcharts-tooltip wide">8</td>`,
			want: 8,
		},
		{
			name: "first match wins",
			html: `<td class="highcharts-tooltip">1.5</td><td class="highcharts-tooltip">2.5</td>`,
			want: 1.5,
		},
		{
			name: "text in nested elements",
			html: `<td class="highcharts-tooltip"><span>3</span><b>.75</b></td>`,
			want: 3.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUsage(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.000001)
		})
	}
}

func TestParseUsageErrors(t *testing.T) {
	t.Run("no tooltip", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<html><body><td class="other">42</td></body></html>`))
		assert.ErrorIs(t, err, ErrTooltipNotFound)
	})

	t.Run("class on wrong tag", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<div class="highcharts-tooltip">42</div>`))
		assert.ErrorIs(t, err, ErrTooltipNotFound)
	})

	t.Run("class prefix is not a match", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<td class="highcharts-tooltip-box">42</td>`))
		assert.ErrorIs(t, err, ErrTooltipNotFound)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<td class="highcharts-tooltip">not-a-number</td>`))
		assert.ErrorIs(t, err, ErrNotNumeric)
		assert.Contains(t, err.Error(), "not-a-number")
	})

	t.Run("empty cell", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<td class="highcharts-tooltip">  </td>`))
		assert.ErrorIs(t, err, ErrNotNumeric)
	})

	t.Run("self-closing cell is empty", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<td class="highcharts-tooltip"/><td class="highcharts-tooltip">9</td>`))
		assert.ErrorIs(t, err, ErrNotNumeric)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(`<td class="highcharts-tooltip">1e400</td>`))
		assert.ErrorIs(t, err, ErrNotNumeric)
		assert.ErrorIs(t, err, strconv.ErrRange)
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := ParseUsage(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrTooltipNotFound)
	})
}
