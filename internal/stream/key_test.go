package stream

import (
	"testing"

	"github.com/haasonsaas/chatloop/pkg/models"
)

func TestStreamIDDeterministic(t *testing.T) {
	user := &models.UserInfo{Platform: "telegram", UserID: "u42"}
	group := &models.GroupInfo{Platform: "telegram", GroupID: "g7"}

	a, err := StreamID("helper", "telegram", user, group)
	if err != nil {
		t.Fatal(err)
	}
	b, err := StreamID("helper", "telegram", user, group)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same identity produced different ids: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}
}

func TestStreamIDComponentsMatter(t *testing.T) {
	user := &models.UserInfo{UserID: "u1"}
	group := &models.GroupInfo{GroupID: "g1"}

	base, _ := StreamID("helper", "telegram", user, group)

	cases := []struct {
		name    string
		agentID string
		plat    string
		user    *models.UserInfo
		group   *models.GroupInfo
	}{
		{"different agent", "other", "telegram", user, group},
		{"different platform", "helper", "discord", user, group},
		{"different group", "helper", "telegram", user, &models.GroupInfo{GroupID: "g2"}},
		{"private instead of group", "helper", "telegram", user, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := StreamID(tc.agentID, tc.plat, tc.user, tc.group)
			if err != nil {
				t.Fatal(err)
			}
			if got == base {
				t.Error("distinct identity collided with base id")
			}
		})
	}
}

func TestStreamIDSentinels(t *testing.T) {
	group := &models.GroupInfo{GroupID: "g1"}

	blank, err := StreamID("", "", nil, group)
	if err != nil {
		t.Fatal(err)
	}
	explicit, err := StreamID("default", "unknown", nil, group)
	if err != nil {
		t.Fatal(err)
	}
	if blank != explicit {
		t.Error("blank components did not normalize to sentinels")
	}
}

func TestStreamIDInvalidIdentity(t *testing.T) {
	if _, err := StreamID("helper", "telegram", nil, nil); err != ErrInvalidIdentity {
		t.Errorf("no participants: err = %v, want ErrInvalidIdentity", err)
	}
	if _, err := StreamID("helper", "telegram", &models.UserInfo{}, nil); err != ErrInvalidIdentity {
		t.Errorf("private chat without user id: err = %v, want ErrInvalidIdentity", err)
	}
}

func TestStreamIDGroupIDOutranksUser(t *testing.T) {
	group := &models.GroupInfo{GroupID: "g1"}
	a, err := StreamID("helper", "telegram", &models.UserInfo{UserID: "u1"}, group)
	if err != nil {
		t.Fatal(err)
	}
	b, err := StreamID("helper", "telegram", &models.UserInfo{UserID: "u2"}, group)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("group identity varies with the sending user")
	}
}
