package models

import "testing"

func TestChatroomPairKey(t *testing.T) {
	tests := []struct {
		name  string
		user1 uint
		user2 uint
		want  string
	}{
		{"already ordered", 1, 2, "1:2"},
		{"reversed", 2, 1, "1:2"},
		{"large ids", 100, 7, "7:100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChatroomPairKey(tt.user1, tt.user2); got != tt.want {
				t.Errorf("ChatroomPairKey(%d, %d) = %q, want %q", tt.user1, tt.user2, got, tt.want)
			}
		})
	}
}

func TestChatroomMembers(t *testing.T) {
	room := Chatroom{User1ID: 3, User2ID: 8}
	if !room.HasMember(3) || !room.HasMember(8) {
		t.Error("HasMember rejected a member")
	}
	if room.HasMember(5) {
		t.Error("HasMember accepted a stranger")
	}
	if got := room.OtherMember(3); got != 8 {
		t.Errorf("OtherMember(3) = %d, want 8", got)
	}
	if got := room.OtherMember(8); got != 3 {
		t.Errorf("OtherMember(8) = %d, want 3", got)
	}
}

func TestReactionEmoji(t *testing.T) {
	tests := []struct {
		reactionType ReactionType
		want         string
	}{
		{ReactionThumbUp, "👍"},
		{ReactionLove, "❤️"},
		{ReactionCrying, "😢"},
		{ReactionSurprised, "😲"},
	}
	for _, tt := range tests {
		if got := tt.reactionType.Emoji(); got != tt.want {
			t.Errorf("%s.Emoji() = %q, want %q", tt.reactionType, got, tt.want)
		}
	}
}

func TestValidators(t *testing.T) {
	for _, s := range []UserStatus{StatusOnline, StatusOffline, StatusAway, StatusBusy} {
		if !ValidUserStatus(s) {
			t.Errorf("ValidUserStatus(%s) = false", s)
		}
	}
	if ValidUserStatus("SLEEPING") {
		t.Error("ValidUserStatus accepted SLEEPING")
	}
	for _, r := range []ReactionType{ReactionThumbUp, ReactionLove, ReactionCrying, ReactionSurprised} {
		if !ValidReactionType(r) {
			t.Errorf("ValidReactionType(%s) = false", r)
		}
	}
	if ValidReactionType("WINK") {
		t.Error("ValidReactionType accepted WINK")
	}
}
