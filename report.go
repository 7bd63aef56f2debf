package bmff

// ReportNode is one flattened box record for external collaborators (C7):
// a JSON-able projection of a BoxRef. Decoded is nil when decoding wasn't
// requested, a string for text/error/raw-byte-count decodings, or the
// StructuredData value itself for programmatic consumers.
type ReportNode struct {
	Offset   int64        `json:"offset"`
	Size     int64        `json:"size"`
	Type     string       `json:"typ"`
	UUID     string       `json:"uuid,omitempty"`
	Version  *uint8       `json:"version,omitempty"`
	Flags    *uint32      `json:"flags,omitempty"`
	Kind     string       `json:"kind"`
	FullName string       `json:"full_name"`
	Decoded  any          `json:"decoded,omitempty"`
	Children []ReportNode `json:"children,omitempty"`
}

// Report is the top-level projection of an analysis: the box forest plus
// any warnings accumulated while parsing (truncation, invariant
// violations) — carried forward rather than discarded.
type Report struct {
	Boxes    []ReportNode `json:"boxes"`
	Warnings []string     `json:"warnings,omitempty"`
}

// BuildReport flattens a Tree into its external-facing projection.
func BuildReport(t *Tree) Report {
	nodes := make([]ReportNode, len(t.Roots))
	for i, root := range t.Roots {
		nodes[i] = buildReportNode(root)
	}
	return Report{Boxes: nodes, Warnings: t.Warnings}
}

func buildReportNode(ref BoxRef) ReportNode {
	node := ReportNode{
		Offset:   ref.Header.Start,
		Size:     ref.Header.Size,
		Type:     ref.Header.Key.Type.String(),
		Kind:     ref.Category.String(),
		FullName: ref.FullName,
	}
	if ref.Header.Key.IsUUID() {
		node.UUID = ref.Header.Key.String()
	}
	if ref.Category == CategoryFullBox {
		v, f := ref.Version, ref.Flags
		node.Version = &v
		node.Flags = &f
	}
	if ref.HasDecoded {
		node.Decoded = renderDecoded(ref.Decoded)
	}
	if ref.Children != nil {
		node.Children = make([]ReportNode, len(ref.Children))
		for i, c := range ref.Children {
			node.Children[i] = buildReportNode(c)
		}
	}
	return node
}

// renderDecoded surfaces a BoxValue for the report's decoded field:
// structured decodings pass through as typed values for programmatic
// consumers, text/error decodings render as their string, and raw bytes
// render as "N bytes" rather than dumping the payload.
func renderDecoded(v BoxValue) any {
	switch v.Kind {
	case BoxValueStructured:
		return v.Structured
	case BoxValueText:
		return v.Text
	case BoxValueError:
		return "[decode error: " + v.Text + "]"
	default:
		return itoa(int64(len(v.Bytes))) + " bytes"
	}
}
