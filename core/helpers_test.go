package core

import (
	"time"
)

func seedUsers(f *StoreFixture, users ...UserCreateInput) {
	for _, u := range users {
		if _, err := f.userStore.CreateUser(f.ctx, u); err != nil {
			f.t.Fatal(err)
		}
	}
}

func seedGroup(f *StoreFixture, name string, creator ID, members ...ID) ID {
	id, err := f.userStore.CreateGroup(f.ctx, name, creator, members...)
	if err != nil {
		f.t.Fatal(err)
	}
	return id
}

func sendPersonal(f *StoreFixture, sender, receiver ID, body string) *Message {
	msg, err := f.chatStore.SaveMessage(f.ctx, MessageCreateInput{
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return msg
}

func sendGroup(f *StoreFixture, sender, group ID, body string) *Message {
	msg, err := f.chatStore.SaveMessage(f.ctx, MessageCreateInput{
		SenderID: sender,
		GroupID:  group,
		Body:     body,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return msg
}

// tick keeps successive timestamps strictly ordered; the seen watermark
// comparison is a strict greater-than.
func tick() {
	time.Sleep(2 * time.Millisecond)
}
