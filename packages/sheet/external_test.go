package sheet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func salesResolver(t *testing.T) ResolveFunc {
	t.Helper()
	sales := NewSheet(3, 2)
	sales.Cells["A1"] = "5"
	sales.Cells["A2"] = "10"
	sales.Cells["B1"] = "=A1+A2"
	sales.Cells["B2"] = "=1/0"

	return func(ref ExternalReference) ResolvedReference {
		switch {
		case ref.Identifier == "sales-1", ref.Identifier == "" && ref.Label == "Sales":
			return ResolvedReference{PageID: "sales-1", PageTitle: "Sales", Sheet: sales}
		case ref.Identifier == "" && ref.Label == "Missing":
			return ResolvedReference{Error: "page not found: Missing"}
		default:
			return ResolvedReference{}
		}
	}
}

func TestExternalReferences(t *testing.T) {
	NewEvalTestCase(t, "External").
		WithResolver(salesResolver(t)).
		Set("A1", "=@[Sales]:B1").
		Set("A2", "=@[Sales](sales-1):A2*2").
		Set("A3", "=SUM(@[Sales]:A1:A2)").
		Set("A4", "=@[Sales]:C3").
		Run().
		AssertNumber("A1", 15).
		AssertNumber("A2", 20).
		AssertNumber("A3", 15).
		AssertEmpty("A4").
		AssertDependsOn("A1", "@[Sales]:B1").
		AssertDependsOn("A3", "@[Sales]:A1:A2").
		End()

	// a range suffix is only usable as a function argument, matching
	// in-grid ranges
	NewEvalTestCase(t, "ExternalRangeScalar").
		WithResolver(salesResolver(t)).
		Set("A1", "=@[Sales]:A1:A2+1").
		Set("A2", "=@[Sales]:A1:A2").
		Run().
		AssertErr("A1", ErrRuntime).
		AssertErr("A2", ErrRuntime).
		End()
}

func TestExternalReferenceErrors(t *testing.T) {
	NewEvalTestCase(t, "ResolverErrors").
		WithResolver(salesResolver(t)).
		Set("A1", "=@[Missing]:A1").
		Set("A2", "=@[Unknown]:A1").
		Set("A3", "=@[Sales]:B2").
		Set("A4", "=@[Sales]").
		Set("B1", "=A1").
		Run().
		AssertErr("A1", ErrReference).
		AssertErrMessage("A1", "page not found: Missing").
		AssertErrMessage("B1", "page not found: Missing").
		AssertErrMessage("A2", "reference not available").
		AssertErrMessage("A3", "Division by zero").
		AssertErr("A4", ErrRuntime).
		End()

	NewEvalTestCase(t, "NoResolver").
		Set("A1", "=@[Anything]:A1").
		Run().
		AssertErr("A1", ErrReference).
		AssertErrMessage("A1", "reference not available").
		AssertDisplay("A1", "#ERROR").
		End()
}

func TestExternalSelfReference(t *testing.T) {
	NewEvalTestCase(t, "SelfByID").
		WithResolver(salesResolver(t)).
		WithPage("sales-1", "Sales").
		Set("A1", "=@[Whatever](sales-1):A1").
		Run().
		AssertErr("A1", ErrCircular).
		AssertErrMessage("A1", "Circular reference detected").
		End()

	NewEvalTestCase(t, "SelfByTitle").
		WithResolver(salesResolver(t)).
		WithPage("other-id", "Sales").
		Set("A1", "=@[Sales]:A1").
		Run().
		AssertErr("A1", ErrCircular).
		End()
}

// external references in a referenced page are not followed further
func TestExternalSingleIndirection(t *testing.T) {
	nested := NewSheet(1, 1)
	nested.Cells["A1"] = "=@[Deeper]:A1"

	resolve := func(ref ExternalReference) ResolvedReference {
		if ref.Label == "Nested" {
			return ResolvedReference{PageID: "nested-1", Sheet: nested}
		}
		return ResolvedReference{PageID: "deep", Sheet: NewSheet(1, 1)}
	}

	NewEvalTestCase(t, "SingleIndirection").
		WithResolver(resolve).
		Set("A1", "=@[Nested]:A1").
		Run().
		AssertErrMessage("A1", "reference not available").
		End()
}

func TestCollectExternalReferences(t *testing.T) {
	sheet := NewSheet(5, 5)
	sheet.Cells["A1"] = "=@[Budget]:A1"
	sheet.Cells["A2"] = "=@[Budget]:B2+@[Sales](sales-1):A1"
	sheet.Cells["A3"] = "=SUM(@[Budget]:A1:B2)"
	sheet.Cells["A4"] = "plain text"
	sheet.Cells["A5"] = "=SUM(" // unparseable, ignored

	got := CollectExternalReferences(sheet)
	want := []ExternalReference{
		{Raw: "@[Budget]", Label: "Budget"},
		{Raw: "@[Sales](sales-1)", Label: "Sales", Identifier: "sales-1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CollectExternalReferences mismatch (-want +got):\n%s", diff)
	}

	if refs := CollectExternalReferences(nil); len(refs) != 0 {
		t.Errorf("nil sheet: got %v, want none", refs)
	}
}
