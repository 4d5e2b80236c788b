package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clubListing = `<html><body>
<table>
  <tr><td class="name">Arsenal</td></tr>
  <tr><td class="name">Chelsea</td></tr>
  <tr><td class="name">   </td></tr>
</table>
<ul class="tm-pagination">
  <li class="list-item list-item--active"><a href="/wettbewerb/GB1/page/1">1</a></li>
  <li class="list-item list-item--icon-last-page"><a href="/wettbewerb/GB1/page/7">&raquo;</a></li>
</ul>
</body></html>`

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wettbewerb/GB1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, clubListing)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// runCLI executes the root command with a config directory holding no files,
// so the built-in defaults (direct egress) apply.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STATSCRAPE_EGRESS_MODE", "direct")
	t.Setenv("STATSCRAPE_LOG_LEVEL", "error")

	// Flag values and their Changed bits outlive a single Execute call.
	fetchCmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			require.NoError(t, sv.Replace(nil))
		} else {
			require.NoError(t, f.Value.Set(f.DefValue))
		}
		f.Changed = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--configdir", t.TempDir()}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchCommand_XPathAndList(t *testing.T) {
	srv := newUpstream(t)
	names := "//td[@class='name']/text()"

	out, err := runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1",
		"--xpath", names,
		"--xpath", "//h1/text()",
		"--list", names)
	require.NoError(t, err)
	assert.Equal(t, names+"\tArsenal\n"+
		"//h1/text()\t<none>\n"+
		names+"[0]\tArsenal\n"+
		names+"[1]\tChelsea\n", out)
}

func TestFetchCommand_Join(t *testing.T) {
	srv := newUpstream(t)
	names := "//td[@class='name']/text()"

	out, err := runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1", "--xpath", names, "--join", " | ")
	require.NoError(t, err)
	assert.Equal(t, names+"\tArsenal | Chelsea\n", out)

	// An empty separator is still a join.
	out, err = runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1", "--xpath", names, "--join", "")
	require.NoError(t, err)
	assert.Equal(t, names+"\tArsenalChelsea\n", out)
}

func TestFetchCommand_Pages(t *testing.T) {
	srv := newUpstream(t)

	out, err := runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1", "--pages", "")
	require.NoError(t, err)
	assert.Equal(t, "last_page\t7\n", out)

	// A base that scopes the widgets away falls back to page 1.
	out, err = runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1", "--pages", "//div[@id='pager']")
	require.NoError(t, err)
	assert.Equal(t, "last_page\t1\n", out)
}

func TestFetchCommand_OverrideReplacesTarget(t *testing.T) {
	srv := newUpstream(t)

	out, err := runCLI(t, "fetch", srv.URL+"/nowhere",
		"--override", srv.URL+"/wettbewerb/GB1",
		"--xpath", "//td[@class='name']/text()")
	require.NoError(t, err)
	assert.Contains(t, out, "\tArsenal\n")
}

func TestFetchCommand_DescribesClassifiedErrors(t *testing.T) {
	srv := newUpstream(t)

	_, err := runCLI(t, "fetch", srv.URL+"/missing")
	require.Error(t, err)
	assert.Equal(t, "client_error (404): Client Error. Not Found for url: "+srv.URL+"/missing", err.Error())

	_, err = runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1", "--assert", "//div[@class='club-header']")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found (")
	assert.Contains(t, err.Error(), "Invalid request (url: "+srv.URL+"/wettbewerb/GB1)")

	_, err = runCLI(t, "fetch", srv.URL+"/wettbewerb/GB1", "--xpath", "//td[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_query (")
}

func TestDescribe_PassesPlainErrorsThrough(t *testing.T) {
	plain := fmt.Errorf("boom")
	assert.Equal(t, plain, describe(plain))
}
