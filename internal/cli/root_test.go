package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "catalogctl", cmd.Use)

	for _, name := range []string{"query", "categories", "children", "stores", "products"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "query", "categories", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestQueryCommand_EscapesLabels(t *testing.T) {
	out, err := execute(t, "query", "products",
		"--namespace", "http://example.org/catalog#",
		"--category", `Bob's "Best"`,
		"--store", "Gigatron",
		"--min-price", "100",
		"--page", "3",
		"--page-size", "30")
	require.NoError(t, err)

	assert.Contains(t, out, `"Bob's \"Best\""`)
	assert.Contains(t, out, `"Gigatron"`)
	assert.Contains(t, out, "OFFSET 60")
	assert.Contains(t, out, "LIMIT 30")
}

func TestQueryCommand_JSONAndErrors(t *testing.T) {
	out, err := execute(t, "query", "children", "--parent", "Laptops", "--level", "end", "--format", "json")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "children", body["kind"])
	assert.Contains(t, body["query"], `"Laptops"`)

	_, err = execute(t, "query", "children", "--level", "top")
	assert.Error(t, err)

	_, err = execute(t, "query", "brands")
	assert.Error(t, err)

	_, err = execute(t, "query", "products", "--min-price", "500", "--max-price", "100")
	assert.Error(t, err)

	_, err = execute(t, "query", "products", "--max-discount", "lots")
	assert.Error(t, err)
}

func TestCategoriesCommand_QueriesEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("query"), "categoryLabel")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = w.Write([]byte(`{
  "head": {"vars": ["categoryLabel"]},
  "results": {"bindings": [
    {"categoryLabel": {"type": "literal", "value": "Laptops"}},
    {"categoryLabel": {"type": "literal", "value": "Phones"}}
  ]}
}`))
	}))
	defer srv.Close()

	out, err := execute(t, "categories", "--endpoint", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laptops", "Phones"}, strings.Fields(out))
}

func TestStoresCommand_EndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "repository not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := execute(t, "stores", "--endpoint", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
