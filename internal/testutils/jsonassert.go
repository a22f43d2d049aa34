package testutils

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// MustJSON marshals v or panics. Test-only convenience.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// JSONAsserter compares JSON documents structurally and reports a readable
// diff on mismatch.
type JSONAsserter struct {
	t *testing.T
}

// NewJSONAsserter creates a JSONAsserter bound to t.
func NewJSONAsserter(t *testing.T) *JSONAsserter {
	return &JSONAsserter{t: t}
}

// Assert compares actualJSON against expectedJSON and fails the test with a
// structural diff when they differ.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	ja.t.Helper()

	var expected map[string]interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		ja.t.Fatalf("invalid expected JSON: %v", err)
	}
	var actual map[string]interface{}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		ja.t.Fatalf("invalid actual JSON: %v", err)
	}

	diff, err := gojsondiff.New().Compare([]byte(expectedJSON), []byte(actualJSON))
	if err != nil {
		ja.t.Fatalf("JSON compare failed: %v", err)
	}
	if !diff.Modified() {
		return
	}

	structural, err := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
	}).Format(diff)
	if err != nil {
		structural = fmt.Sprintf("(diff formatting failed: %v)", err)
	}

	ja.t.Errorf("JSON assertion failed:\n%s\n%s", structural, textDiff(expectedJSON, actualJSON))
}

// textDiff renders a unified diff of the two pretty-printed documents.
func textDiff(expectedJSON, actualJSON string) string {
	expPretty := prettyJSON(expectedJSON)
	actPretty := prettyJSON(actualJSON)

	edits := myers.ComputeEdits(span.URIFromPath("expected.json"), expPretty, actPretty)
	return fmt.Sprint(gotextdiff.ToUnified("expected.json", "actual.json", expPretty, edits))
}

func prettyJSON(s string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s
	}
	return string(out) + "\n"
}
