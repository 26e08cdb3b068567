package sheet

import (
	"fmt"
	"sort"
	"strings"
)

// ExternalReference identifies another page referenced from a formula. Raw
// is the normalized base token without any address suffix, e.g.
// "@[Budget]" or "@[Budget](page-7)".
type ExternalReference struct {
	Raw        string
	Label      string
	Identifier string
}

// ResolvedReference is the outcome of resolving an external reference.
// Either Sheet is set, or Error carries a message that surfaces verbatim
// in every cell depending on the reference.
type ResolvedReference struct {
	PageID    string
	PageTitle string
	Sheet     *SheetData
	Error     string
}

// ResolveFunc resolves an external reference to the sheet content of the
// referenced page. A nil ResolveFunc means every external reference fails
// with the default message.
type ResolveFunc func(ref ExternalReference) ResolvedReference

// parseExternalToken parses a full external reference token, including an
// optional ":A1" or ":A1:B3" address suffix, into an ExternalNode.
func parseExternalToken(raw string) (*ExternalNode, *CellError) {
	rest, ok := strings.CutPrefix(raw, "@[")
	if !ok {
		return nil, newCellError(ErrParse, fmt.Sprintf("invalid external reference: %s", raw))
	}

	label, rest, ok := strings.Cut(rest, "]")
	if !ok || label == "" {
		return nil, newCellError(ErrParse, fmt.Sprintf("invalid external reference: %s", raw))
	}

	var identifier string
	if strings.HasPrefix(rest, "(") {
		id, tail, ok := strings.Cut(rest[1:], ")")
		if !ok || id == "" {
			return nil, newCellError(ErrParse, fmt.Sprintf("invalid external reference: %s", raw))
		}
		identifier = id
		rest = tail
	}

	node := &ExternalNode{Ref: externalRef(label, identifier)}

	if rest == "" {
		return node, nil
	}

	// remaining text must be one or two address suffixes
	parts := strings.Split(rest, ":")
	if parts[0] != "" || len(parts) > 3 {
		return nil, newCellError(ErrParse, fmt.Sprintf("invalid external reference: %s", raw))
	}
	for i, part := range parts[1:] {
		addr := toUpperASCII(part)
		if !IsAddress(addr) {
			return nil, newCellError(ErrParse, fmt.Sprintf("invalid address in external reference: %s", part))
		}
		if i == 0 {
			node.Start = addr
		} else {
			node.End = addr
		}
	}

	return node, nil
}

func externalRef(label, identifier string) ExternalReference {
	raw := "@[" + label + "]"
	if identifier != "" {
		raw += "(" + identifier + ")"
	}
	return ExternalReference{Raw: raw, Label: label, Identifier: identifier}
}

// CollectExternalReferences returns the distinct external references found
// across all formulas of the sheet, sorted by raw token. Cells whose
// formulas fail to parse contribute nothing.
func CollectExternalReferences(sheet *SheetData) []ExternalReference {
	if sheet == nil {
		return nil
	}

	seen := map[string]ExternalReference{}
	for addr, content := range sheet.Cells {
		if !IsAddress(addr) || !strings.HasPrefix(content, "=") {
			continue
		}
		node, err := ParseFormula(content)
		if err != nil {
			continue
		}
		node.walk(func(child Node) {
			if ext, ok := child.(*ExternalNode); ok {
				seen[ext.Ref.Raw] = ext.Ref
			}
		})
	}

	refs := make([]ExternalReference, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Raw < refs[j].Raw })
	return refs
}
