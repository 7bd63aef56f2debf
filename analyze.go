package bmff

import "io"

// AnalyzeReport runs Analyze and flattens the result, matching the
// analyze() public operation's full round trip for external callers that
// just want the report shape without touching the tree directly.
func AnalyzeReport(r io.ReadSeeker, decode bool) (Report, error) {
	tree, err := Analyze(r, decode)
	if err != nil {
		return Report{}, err
	}
	return BuildReport(tree), nil
}
