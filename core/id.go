package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ID identifies a user, group, message, or announcement.
// Collaborating services are inconsistent about whether ids travel as JSON
// numbers or strings, so ID decodes both and always compares as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("json.Unmarshal: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Norm normalizes an id of any representation to an ID.
func Norm(v interface{}) ID {
	switch t := v.(type) {
	case ID:
		return t
	case string:
		return ID(t)
	case int:
		return ID(strconv.Itoa(t))
	case int64:
		return ID(strconv.FormatInt(t, 10))
	case float64:
		return ID(strconv.FormatFloat(t, 'f', -1, 64))
	case fmt.Stringer:
		return ID(t.String())
	default:
		return ID(fmt.Sprintf("%v", t))
	}
}

// PersonalRoom returns the name of a user's personal inbox room.
// The naming convention is part of the wire contract.
func PersonalRoom(user ID) string {
	return "user_" + string(user)
}

// GroupRoom returns the name of a group's broadcast room.
func GroupRoom(group ID) string {
	return "group_" + string(group)
}
