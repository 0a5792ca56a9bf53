package model

import "testing"

func TestOrderingKeyCompare(t *testing.T) {
	cases := []struct {
		name string
		a, b *OrderingKey
		want int
	}{
		{"block wins", &OrderingKey{BlockNumber: 6, LogIndex: 0}, &OrderingKey{BlockNumber: 5, LogIndex: 9}, 1},
		{"log index", &OrderingKey{BlockNumber: 5, LogIndex: 1}, &OrderingKey{BlockNumber: 5, LogIndex: 2}, -1},
		{"equal", &OrderingKey{BlockNumber: 5, LogIndex: 2}, &OrderingKey{BlockNumber: 5, LogIndex: 2}, 0},
		{"timestamp fallback", &OrderingKey{Timestamp: 10}, &OrderingKey{BlockNumber: 5, LogIndex: 2, Timestamp: 9}, 1},
		{"same second", &OrderingKey{BlockNumber: 7, Timestamp: 9}, &OrderingKey{Timestamp: 9}, 0},
		{"nil stored", &OrderingKey{Timestamp: 1}, nil, 1},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(Reject(CodeExpired, "valid_to %d", 10)); got != CodeExpired {
		t.Fatalf("unexpected code %s", got)
	}
	if got := CodeOf(ErrTraceUnavailable); got != CodeTraceUnavailable {
		t.Fatalf("unexpected code %s", got)
	}
	if CodeAlreadyExists.Class() != ClassPersistenceConflict {
		t.Fatalf("unexpected class %s", CodeAlreadyExists.Class())
	}
	if CodeOf(nil) != CodeSuccess {
		t.Fatalf("nil error should be success")
	}
}
