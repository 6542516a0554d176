package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal_Can(t *testing.T) {
	tests := []struct {
		role   Role
		verify bool
		view   bool
	}{
		{role: RoleCustomer, verify: false, view: false},
		{role: RoleStaff, verify: true, view: true},
		{role: RoleAdmin, verify: true, view: true},
		{role: Role("root"), verify: false, view: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			p := Principal{UserID: 1, Role: tt.role}
			assert.Equal(t, tt.verify, p.Can(CapVerifyOrders))
			assert.Equal(t, tt.view, p.Can(CapViewAnyOrder))
		})
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" ADMIN "))
	assert.Equal(t, RoleStaff, ParseRole("Staff"))
	assert.Equal(t, RoleCustomer, ParseRole("user"))
	assert.Equal(t, RoleCustomer, ParseRole(""))
}

func TestPrincipal_Owns(t *testing.T) {
	assert.True(t, Principal{UserID: 7}.Owns(7))
	assert.False(t, Principal{UserID: 7}.Owns(8))
	assert.False(t, Principal{}.Owns(0))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: 3, Role: RoleStaff})
	p, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(3), p.UserID)
}

func TestHashKey(t *testing.T) {
	a := HashKey("secret", []byte("pepper"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey("secret", []byte("pepper")))
	assert.NotEqual(t, a, HashKey("secret", []byte("other")))
}
