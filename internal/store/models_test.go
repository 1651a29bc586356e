package store

import "testing"

func TestValidDocumentStatus(t *testing.T) {
	for _, status := range DocumentStatuses {
		if !ValidDocumentStatus(status) {
			t.Errorf("known status %q rejected", status)
		}
	}
	for _, status := range []string{"", "archived", "PENDING", "done"} {
		if ValidDocumentStatus(status) {
			t.Errorf("unknown status %q accepted", status)
		}
	}
}
