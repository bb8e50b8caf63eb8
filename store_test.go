package rentaly

import (
	"testing"
	"time"
)

func TestConversationStoreOverlay(t *testing.T) {
	s := NewConversationStore()
	c := sampleContact("c1", StatusPending)
	s.SetList(&ContactList{Contacts: []Contact{c}, Pagination: &Pagination{Page: 1, Limit: 10, Total: 1, TotalPages: 1}})
	s.SetCurrent(&c)

	s.AddPending("c1", Response{ClientID: "tmp-1", Message: "on it"})
	if got := s.Current().Responses; len(got) != 2 || !got[1].Pending {
		t.Fatalf("current responses = %+v", got)
	}
	if got := s.Confirmed().Responses; len(got) != 1 {
		t.Fatalf("confirmed should not carry the overlay: %+v", got)
	}
	if got := s.List()[0].Responses; len(got) != 1 {
		t.Fatalf("list should not carry the overlay: %+v", got)
	}

	s.ResolvePending("c1", "tmp-1", &Response{ID: "r2", Message: "on it", SentBy: SentByAdmin})
	if s.PendingCount("c1") != 0 {
		t.Fatal("pending entry should be gone")
	}
	cur := s.Current()
	if len(cur.Responses) != 2 || cur.Responses[1].ID != "r2" || cur.Responses[1].Pending {
		t.Fatalf("current responses = %+v", cur.Responses)
	}
	if got := s.List()[0].Responses; len(got) != 2 {
		t.Fatalf("list responses = %+v", got)
	}

	// The echo of the same response is not appended twice.
	if s.AppendResponse("c1", Response{ID: "r2", Message: "on it"}) {
		t.Fatal("duplicate response appended")
	}
}

func TestConversationStoreRollback(t *testing.T) {
	s := NewConversationStore()
	c := sampleContact("c1", StatusPending)
	s.SetCurrent(&c)

	s.AddPending("c1", Response{ClientID: "tmp-1", Message: "lost"})
	s.ResolvePending("c1", "tmp-1", nil)
	if got := s.Current().Responses; len(got) != 1 {
		t.Fatalf("rollback left %+v", got)
	}
}

func TestConversationStoreClosedBlocksAppend(t *testing.T) {
	s := NewConversationStore()
	c := sampleContact("c1", StatusClosed)
	s.SetCurrent(&c)

	if s.AppendResponse("c1", Response{ID: "r9", Message: "late", SentAt: time.Now()}) {
		t.Fatal("append to closed conversation")
	}
	if got := s.Current().Responses; len(got) != 1 {
		t.Fatalf("responses = %+v", got)
	}
}

func TestConversationStoreListMaintenance(t *testing.T) {
	s := NewConversationStore()
	s.SetList(&ContactList{
		Contacts:   []Contact{sampleContact("c1", StatusPending)},
		Pagination: &Pagination{Page: 1, Limit: 10, Total: 1, TotalPages: 1},
	})

	if !s.Prepend(sampleContact("c2", StatusPending)) {
		t.Fatal("prepend failed")
	}
	if s.Prepend(sampleContact("c2", StatusPending)) {
		t.Fatal("prepend should dedupe by id")
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != "c2" || s.Pagination().Total != 2 {
		t.Fatalf("list = %v, pagination = %+v", list, s.Pagination())
	}

	if !s.SetStatus("c1", StatusResolved, PriorityHigh) {
		t.Fatal("status not applied")
	}
	if st, ok := s.Status("c1"); !ok || st != StatusResolved {
		t.Fatalf("status = %s %v", st, ok)
	}

	if !s.RemoveResponse("", "r1") {
		t.Fatal("response r1 not found across conversations")
	}

	s.MarkRead("c2", "")
	for _, c := range s.List() {
		if c.ID == "c2" && !c.IsRead {
			t.Fatal("c2 should be read")
		}
	}

	s.Remove("c1")
	if _, ok := s.Status("c1"); ok {
		t.Fatal("c1 still listed")
	}

	s.Reset()
	if len(s.List()) != 0 || s.Pagination() != nil || s.Current() != nil {
		t.Fatal("reset left state behind")
	}
}
