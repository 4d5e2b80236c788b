package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statscrape/internal/shared/scrapeerr"
)

func TestLastPageNumber(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		base   string
		want   int
	}{
		{
			name:   "no pagination",
			markup: `<div class="responsive-table"><table></table></div>`,
			want:   1,
		},
		{
			name:   "query string link",
			markup: `<ul><li class="tm-pagination__list-item--icon-last-page"><a href="?page=3">»</a></li></ul>`,
			want:   3,
		},
		{
			name:   "path link",
			markup: `<ul><li class="tm-pagination__list-item tm-pagination__list-item--icon-last-page"><a href="/premier-league/startseite/wettbewerb/GB1/page/12">»</a></li></ul>`,
			want:   12,
		},
		{
			name: "falls back to active page",
			markup: `<ul>
				<li class="tm-pagination__list-item"><a href="/x/page/1">1</a></li>
				<li class="tm-pagination__list-item tm-pagination__list-item--active"><a href="/x/page/2">2</a></li>
			</ul>`,
			want: 2,
		},
		{
			name: "last wins over active",
			markup: `<ul>
				<li class="list-item--active"><a href="/x?page=1">1</a></li>
				<li class="list-item--icon-last-page"><a href="/x?page=9">9</a></li>
			</ul>`,
			want: 9,
		},
		{
			name: "base scopes the lookup",
			markup: `<div id="a"><ul><li class="list-item--icon-last-page"><a href="?page=4">4</a></li></ul></div>
				<div id="b"><ul><li class="list-item--icon-last-page"><a href="?page=6">6</a></li></ul></div>`,
			base: "//div[@id='b']",
			want: 6,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPage(t, tc.markup)
			got, err := p.LastPageNumber(tc.base)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLastPageNumber_NonNumericIsConversionFault(t *testing.T) {
	p := newPage(t, `<li class="list-item--icon-last-page"><a href="/x/page/last">»</a></li>`)
	_, err := p.LastPageNumber("")
	require.Error(t, err)
	assert.Equal(t, scrapeerr.ValueConversionFault, scrapeerr.KindOf(err))
}

func TestParsePageNumber(t *testing.T) {
	for text, want := range map[string]int{
		"?page=3":               3,
		"/a/b/page/17":          17,
		"/a?x=1&page=/verein/5": 5,
		"42":                    42,
	} {
		got, err := ParsePageNumber(text)
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}

	_, err := ParsePageNumber("/page/")
	assert.Equal(t, scrapeerr.ValueConversionFault, scrapeerr.KindOf(err))
}
