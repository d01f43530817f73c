package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/segmentation"
)

func TestContactRepo_GetMany(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM contacts\\s+WHERE id = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "tags", "unsubscribed_at", "created_at"}).
			AddRow("k1", "a@example.com", "A", "{vip,new}", nil, now).
			AddRow("k2", "b@example.com", "B", "{}", now, now))

	out, err := NewContactRepo(db).GetMany(context.Background(), []string{"k1", "k2"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"vip", "new"}, out[0].Tags)
	assert.False(t, out[0].IsUnsubscribed())
	assert.True(t, out[1].IsUnsubscribed())
}

func TestContactRepo_CountContactsUsesRules(t *testing.T) {
	db, mock := setupTestDB(t)
	rules := domain.RuleTree{{Conditions: []domain.Condition{domain.TagCondition{Tag: "vip"}}}}

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM contacts c").
		WithArgs("vip").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := NewContactRepo(db).CountContacts(context.Background(), segmentation.ContactQuery{Rules: rules})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestContactRepo_ContactIDsWithStaticMembers(t *testing.T) {
	db, mock := setupTestDB(t)
	rules := domain.RuleTree{{Conditions: []domain.Condition{domain.UnsubscribedCondition{Value: false}}}}

	mock.ExpectQuery("SELECT c.id FROM contacts c").
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("k1").AddRow("k2"))

	ids, err := NewContactRepo(db).ContactIDs(context.Background(),
		segmentation.ContactQuery{Rules: rules, StaticAudienceID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, ids)
}

func TestAudienceRepo_GetDecodesRules(t *testing.T) {
	db, mock := setupTestDB(t)
	now := time.Now().UTC()
	rules := `[{"rules":[{"field":"tag","value":"vip"},{"field":"unsubscribed","value":false}]}]`

	mock.ExpectQuery("FROM audiences WHERE id = \\$1").WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "rules", "member_count", "created_at", "updated_at"}).
			AddRow("a1", "VIPs", "", []byte(rules), 0, now, now))

	a, err := NewAudienceRepo(db).Get(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, a.Rules, 1)
	assert.Equal(t, domain.TagCondition{Tag: "vip"}, a.Rules[0].Conditions[0])
	assert.Equal(t, domain.UnsubscribedCondition{Value: false}, a.Rules[0].Conditions[1])
}

func TestAudienceRepo_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectQuery("FROM audiences").WillReturnError(sql.ErrNoRows)

	_, err := NewAudienceRepo(db).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, segmentation.ErrAudienceNotFound)
}

func TestAudienceRepo_UpdateMemberCount(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("UPDATE audiences SET member_count").WithArgs("a1", 12).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewAudienceRepo(db).UpdateMemberCount(context.Background(), "a1", 12))
}
