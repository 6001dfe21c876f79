package conversation

import (
	"testing"
	"time"
)

func TestMerge(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	tests := []struct {
		name     string
		current  Conversation
		incoming Conversation
		wantName string
	}{
		{
			name:     "newer incoming wins",
			current:  Conversation{ID: "c1", GroupName: "old", LastChange: t1},
			incoming: Conversation{ID: "c1", GroupName: "new", LastChange: t2},
			wantName: "new",
		},
		{
			name:     "older incoming is ignored",
			current:  Conversation{ID: "c1", GroupName: "old", LastChange: t2},
			incoming: Conversation{ID: "c1", GroupName: "new", LastChange: t1},
			wantName: "old",
		},
		{
			name:     "equal timestamps prefer server copy",
			current:  Conversation{ID: "c1", GroupName: "old", LastChange: t1},
			incoming: Conversation{ID: "c1", GroupName: "new", LastChange: t1},
			wantName: "new",
		},
		{
			name:     "local optimistic entry survives equal timestamp",
			current:  Conversation{ID: "c1", GroupName: "local", LastChange: t1, Local: true},
			incoming: Conversation{ID: "c1", GroupName: "server", LastChange: t1},
			wantName: "local",
		},
		{
			name:     "local optimistic entry yields to strictly newer server copy",
			current:  Conversation{ID: "c1", GroupName: "local", LastChange: t1, Local: true},
			incoming: Conversation{ID: "c1", GroupName: "server", LastChange: t2},
			wantName: "server",
		},
		{
			name:     "mismatched ids keep current",
			current:  Conversation{ID: "c1", GroupName: "old", LastChange: t1},
			incoming: Conversation{ID: "c2", GroupName: "new", LastChange: t2},
			wantName: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.current, tt.incoming)
			if got.GroupName != tt.wantName {
				t.Errorf("Merge() picked %q, want %q", got.GroupName, tt.wantName)
			}
		})
	}
}

func TestUnreadListUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    UnreadList
		wantErr bool
	}{
		{
			name: "per-user list",
			data: `[{"userId":"u1","count":3},{"userId":"u2","count":0}]`,
			want: UnreadList{{UserID: "u1", Count: 3}, {UserID: "u2", Count: 0}},
		},
		{
			name: "bare integer",
			data: `7`,
			want: UnreadList{{Count: 7}},
		},
		{
			name:    "garbage",
			data:    `"nope"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got UnreadList
			err := got.UnmarshalJSON([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("UnmarshalJSON() succeeded unexpectedly")
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalJSON() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestConversationVisibleTo(t *testing.T) {
	conv := Conversation{
		ID:            "c1",
		IsGroup:       true,
		GroupMembers:  []string{"u1", "u2"},
		FormerMembers: []string{"u3"},
	}

	if !conv.VisibleTo("u1") {
		t.Error("active member should see the conversation")
	}
	if conv.VisibleTo("u3") {
		t.Error("former member should not see the conversation")
	}

	conv.IsDeleted = true
	if conv.VisibleTo("u1") {
		t.Error("soft-deleted conversation should be hidden from everyone")
	}
}
