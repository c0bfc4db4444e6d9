package service

import (
	"context"
	"testing"

	"settlecore/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetReferrer(t *testing.T) {
	db := setupTestDB(t)
	svc := NewReferralService(db, testConfig())
	ctx := context.Background()

	referrer := createTestUser(t, db, "推荐者")
	user := createTestUser(t, db, "被推荐者")

	require.NoError(t, svc.SetReferrer(ctx, user.ID, referrer.ID))

	got, err := svc.GetReferrer(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, referrer.ID, got.ID)
}

func TestSetReferrer_Rejections(t *testing.T) {
	db := setupTestDB(t)
	svc := NewReferralService(db, testConfig())
	ctx := context.Background()

	referrer := createTestUser(t, db, "推荐者2")
	other := createTestUser(t, db, "另一推荐者")
	user := createTestUser(t, db, "被推荐者2")

	// 自己推荐自己
	assert.ErrorIs(t, svc.SetReferrer(ctx, user.ID, user.ID), ErrSelfReferral)

	// 推荐人不存在
	assert.ErrorIs(t, svc.SetReferrer(ctx, user.ID, 9999), ErrReferrerNotFound)

	// 推荐关系不可变更：第二次绑定是错误，不是幂等成功
	require.NoError(t, svc.SetReferrer(ctx, user.ID, referrer.ID))
	assert.ErrorIs(t, svc.SetReferrer(ctx, user.ID, other.ID), ErrAlreadyHasReferrer)
	assert.ErrorIs(t, svc.SetReferrer(ctx, user.ID, referrer.ID), ErrAlreadyHasReferrer)

	// 失败不改变原有关系
	got, err := svc.GetReferrer(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, referrer.ID, got.ID)
}

func TestGetReferrer_None(t *testing.T) {
	db := setupTestDB(t)
	svc := NewReferralService(db, testConfig())

	user := createTestUser(t, db, "孤儿用户")
	got, err := svc.GetReferrer(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetTeam(t *testing.T) {
	db := setupTestDB(t)
	svc := NewReferralService(db, testConfig())
	ctx := context.Background()

	// root -> a -> b -> c，另有 root -> d
	root := createTestUser(t, db, "团队根")
	a := createTestUser(t, db, "一层甲")
	b := createTestUser(t, db, "二层")
	c := createTestUser(t, db, "三层")
	d := createTestUser(t, db, "一层乙")
	setReferrer(t, db, a.ID, root.ID)
	setReferrer(t, db, b.ID, a.ID)
	setReferrer(t, db, c.ID, b.ID)
	setReferrer(t, db, d.ID, root.ID)

	team, err := svc.GetTeam(ctx, root.ID, 6)
	require.NoError(t, err)
	require.Len(t, team, 4)

	// 按层级、用户ID排序
	assert.Equal(t, a.ID, team[0].UserID)
	assert.Equal(t, 1, team[0].Layer)
	assert.Equal(t, d.ID, team[1].UserID)
	assert.Equal(t, 1, team[1].Layer)
	assert.Equal(t, b.ID, team[2].UserID)
	assert.Equal(t, 2, team[2].Layer)
	assert.Equal(t, c.ID, team[3].UserID)
	assert.Equal(t, 3, team[3].Layer)

	// 层级上限生效
	shallow, err := svc.GetTeam(ctx, root.ID, 2)
	require.NoError(t, err)
	assert.Len(t, shallow, 3)

	// 超出配置上限时收敛到配置值
	var allUsers []*model.TeamMember
	allUsers, err = svc.GetTeam(ctx, root.ID, 99)
	require.NoError(t, err)
	assert.Len(t, allUsers, 4)
}
