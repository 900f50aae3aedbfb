package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {

	t.Run("creates a roster entry", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		user, err := f.userStore.CreateUser(f.ctx, alice)
		require.Nil(t, err)
		assert.Equal(t, alice.ID, user.ID)

		got, err := f.userStore.GetUserByID(f.ctx, alice.ID)
		require.Nil(t, err)
		require.NotNil(t, got)
		assert.Equal(t, alice.Name, got.Name)
		assert.Equal(t, alice.Role, got.Role)
	})

	t.Run("generates an id when none given", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		user, err := f.userStore.CreateUser(f.ctx, UserCreateInput{Name: "Dana", Role: RoleEmployee})
		require.Nil(t, err)
		assert.NotEmpty(t, user.ID)
	})

	t.Run("rejects an unknown role", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()

		_, err := f.userStore.CreateUser(f.ctx, UserCreateInput{Name: "Dana", Role: "intern"})
		assert.ErrorIs(t, err, ErrInvalidUser)
	})
}

func TestGetUserByID(t *testing.T) {
	f := NewStoreFixture(t)
	defer f.tearDown()
	seedUsers(f, alice)

	user, err := f.userStore.GetUserByID(f.ctx, "nobody")
	require.Nil(t, err)
	assert.Nil(t, user)
}

func TestCreateGroup(t *testing.T) {

	t.Run("members are deduplicated", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()
		seedUsers(f, alice, bob)

		id, err := f.userStore.CreateGroup(f.ctx, "Tax team", alice.ID, bob.ID, bob.ID, alice.ID)
		require.Nil(t, err)

		members, err := f.userStore.GetGroupMembers(f.ctx, id)
		require.Nil(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("needs at least two distinct members", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()
		seedUsers(f, alice)

		_, err := f.userStore.CreateGroup(f.ctx, "Solo", alice.ID, alice.ID)
		assert.ErrorIs(t, err, ErrInsufficientMembers)
	})

	t.Run("every member must exist", func(t *testing.T) {
		f := NewStoreFixture(t)
		defer f.tearDown()
		seedUsers(f, alice)

		_, err := f.userStore.CreateGroup(f.ctx, "Tax team", alice.ID, "nobody")
		assert.ErrorIs(t, err, ErrInvalidUser)
	})
}

func TestGroupMembership(t *testing.T) {
	f := NewStoreFixture(t)
	defer f.tearDown()
	seedUsers(f, alice, bob, carol)
	group := seedGroup(f, "Tax team", alice.ID, bob.ID)

	ok, err := f.userStore.IsGroupMember(f.ctx, group, alice.ID)
	require.Nil(t, err)
	assert.True(t, ok)

	ok, err = f.userStore.IsGroupMember(f.ctx, group, carol.ID)
	require.Nil(t, err)
	assert.False(t, ok)

	groups, err := f.userStore.GetUserGroups(f.ctx, alice.ID)
	require.Nil(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group, groups[0].ID)

	// an unknown group degrades to an empty member list
	members, err := f.userStore.GetGroupMembers(f.ctx, "nope")
	require.Nil(t, err)
	assert.Empty(t, members)
}
