package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stroikit/fsnbmatch/internal/catalog"
)

func Test_Feedback_SessionLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "estimate.xlsx", "reviewer")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != SessionOpen {
		t.Fatalf("new session status: want open, got %s", sess.Status)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.SourceName != "estimate.xlsx" || got.CreatedBy != "reviewer" {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	if err := s.CloseSession(ctx, sess.ID); err != nil {
		t.Fatalf("close session: %v", err)
	}
	got, err = s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get closed session: %v", err)
	}
	if got.Status != SessionClosed {
		t.Errorf("want closed, got %s", got.Status)
	}
}

func Test_Feedback_GetSessionNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.GetSession(context.Background(), 42)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
	if err := s.CloseSession(context.Background(), 42); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("close missing: want ErrSessionNotFound, got %v", err)
	}
}

func Test_Feedback_CreateRowsSkipsEmptyCaptions(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rows, err := s.CreateRows(ctx, sess.ID, []NewRow{
		{Caption: "Устройство стяжки", Units: "м2", Qty: "120"},
		{Caption: "   "},
		{Caption: "Монтаж каркаса"},
	}, "uploader")
	if err != nil {
		t.Fatalf("create rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows (blank caption skipped), got %d", len(rows))
	}

	stored, err := s.RowsForSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("rows for session: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("want 2 stored rows, got %d", len(stored))
	}
	if stored[0].Caption != "Устройство стяжки" || stored[1].Caption != "Монтаж каркаса" {
		t.Errorf("insertion order not preserved: %+v", stored)
	}
	if stored[0].UnitsIn != "м2" || stored[0].QtyIn != "120" {
		t.Errorf("units/qty not round-tripped: %+v", stored[0])
	}
}

func Test_Feedback_CandidatesIgnoreDuplicates(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	seedItems(t, s, []catalog.Record{
		{Code: "A", Name: "a", Kind: catalog.KindWork},
		{Code: "B", Name: "b", Kind: catalog.KindWork},
	})
	sess, _ := s.CreateSession(ctx, "", "")
	rows, err := s.CreateRows(ctx, sess.ID, []NewRow{{Caption: "c"}}, "")
	if err != nil {
		t.Fatalf("create rows: %v", err)
	}
	rowID := rows[0].ID

	n, err := s.CreateCandidates(ctx, []NewCandidate{
		{RowID: rowID, ItemID: 1, ModelName: "giga", Score: 0.9, Rank: 1},
		{RowID: rowID, ItemID: 2, ModelName: "giga", Score: 0.8, Rank: 2},
		{RowID: rowID, ItemID: 1, ModelName: "giga", Score: 0.7, Rank: 3}, // dup triple
		{RowID: 0, ItemID: 1, ModelName: "giga"},                         // missing row
	})
	if err != nil {
		t.Fatalf("create candidates: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 submitted, got %d", n)
	}

	cands, err := s.CandidatesForRow(ctx, rowID)
	if err != nil {
		t.Fatalf("candidates for row: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("want 2 unique candidates, got %d", len(cands))
	}
	if cands[0].ItemID != 1 || cands[1].ItemID != 2 {
		t.Errorf("rank order broken: %+v", cands)
	}
}

func Test_Feedback_LabelsRoundTripAndReplace(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	seedItems(t, s, []catalog.Record{{Code: "A", Name: "a", Kind: catalog.KindWork}})
	sess, _ := s.CreateSession(ctx, "", "")
	rows, err := s.CreateRows(ctx, sess.ID, []NewRow{{Caption: "x"}, {Caption: "y"}}, "")
	if err != nil {
		t.Fatalf("create rows: %v", err)
	}

	selected := int64(1)
	n, err := s.CreateLabels(ctx, []NewLabel{
		{RowID: rows[0].ID, Label: LabelGold, SelectedItemID: &selected, Negatives: []int64{7, 9}, CreatedBy: "rev", IsTrusted: true},
		{RowID: rows[1].ID, Label: "NONE_MATCH", Note: "nothing fits"},
		{RowID: 0, Label: LabelSkip}, // missing identity: skipped
	})
	if err != nil {
		t.Fatalf("create labels: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 inserted, got %d", n)
	}

	labels, err := s.LabelsForRow(ctx, rows[0].ID)
	if err != nil {
		t.Fatalf("labels for row: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("want 1 label, got %d", len(labels))
	}
	l := labels[0]
	if l.Label != LabelGold || l.SelectedItemID == nil || *l.SelectedItemID != 1 {
		t.Errorf("gold label mangled: %+v", l)
	}
	if len(l.Negatives) != 2 || l.Negatives[0] != 7 || l.Negatives[1] != 9 {
		t.Errorf("negatives not round-tripped: %v", l.Negatives)
	}
	if !l.IsTrusted {
		t.Error("is_trusted lost")
	}

	labels, err = s.LabelsForRow(ctx, rows[1].ID)
	if err != nil {
		t.Fatalf("labels for row: %v", err)
	}
	if labels[0].Label != LabelNoneMatch {
		t.Errorf("label normalization: want none_match, got %s", labels[0].Label)
	}
	if labels[0].Negatives == nil || len(labels[0].Negatives) != 0 {
		t.Errorf("nil negatives must persist as empty array, got %v", labels[0].Negatives)
	}

	// Idempotent replace: delete-then-recreate must not accumulate history.
	deleted, err := s.DeleteLabelsForSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("delete labels: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("want 2 deleted, got %d", deleted)
	}
	if _, err := s.CreateLabels(ctx, []NewLabel{{RowID: rows[0].ID, Label: LabelSkip}}); err != nil {
		t.Fatalf("recreate labels: %v", err)
	}
	labels, _ = s.LabelsForRow(ctx, rows[0].ID)
	if len(labels) != 1 || labels[0].Label != LabelSkip {
		t.Fatalf("replace semantics broken: %+v", labels)
	}
}

func Test_Feedback_MarkRowsTrusted(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	sess, _ := s.CreateSession(ctx, "", "")
	if _, err := s.CreateRows(ctx, sess.ID, []NewRow{{Caption: "a"}, {Caption: "b"}}, ""); err != nil {
		t.Fatalf("create rows: %v", err)
	}
	if err := s.MarkRowsTrusted(ctx, sess.ID, true, "lead"); err != nil {
		t.Fatalf("mark trusted: %v", err)
	}

	rows, err := s.RowsForSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("rows for session: %v", err)
	}
	for _, r := range rows {
		if !r.IsTrusted || r.CreatedBy != "lead" {
			t.Errorf("trust stamp missing on row %d: %+v", r.ID, r)
		}
	}
}

func Test_Feedback_ParseLabelFallsBackToSkip(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Label{
		"GOLD":      LabelGold,
		" negative": LabelNegative,
		"bogus":     LabelSkip,
		"":          LabelSkip,
	} {
		if got := ParseLabel(in); got != want {
			t.Errorf("ParseLabel(%q) = %s, want %s", in, got, want)
		}
	}
}
