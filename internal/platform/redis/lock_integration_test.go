//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"insight/internal/platform/redis"
	"insight/pkg/platform/sentinel"
	"insight/pkg/testutil/containers"
)

type LockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *redis.Locker
}

func TestLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LockerSuite))
}

func (s *LockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.locker = redis.NewLocker(redis.Wrap(s.redis.Client))
}

func (s *LockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *LockerSuite) TestSecondAcquireConflicts() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, "week:2026-02-23", time.Minute)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(ctx, "week:2026-02-23", time.Minute)
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(release(ctx))
	release, err = s.locker.Acquire(ctx, "week:2026-02-23", time.Minute)
	s.Require().NoError(err)
	s.NoError(release(ctx))
}

func (s *LockerSuite) TestDifferentKeysAreIndependent() {
	ctx := context.Background()

	r1, err := s.locker.Acquire(ctx, "week:2026-02-16", time.Minute)
	s.Require().NoError(err)
	r2, err := s.locker.Acquire(ctx, "week:2026-02-23", time.Minute)
	s.Require().NoError(err)
	s.NoError(r1(ctx))
	s.NoError(r2(ctx))
}

// TestExpiredLeaseIsNotReleasedByOldHolder verifies a stale release does not
// drop a lease that a later run has taken over.
func (s *LockerSuite) TestExpiredLeaseIsNotReleasedByOldHolder() {
	ctx := context.Background()

	stale, err := s.locker.Acquire(ctx, "week:2026-03-02", 50*time.Millisecond)
	s.Require().NoError(err)
	time.Sleep(120 * time.Millisecond)

	fresh, err := s.locker.Acquire(ctx, "week:2026-03-02", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(stale(ctx))
	_, err = s.locker.Acquire(ctx, "week:2026-03-02", time.Minute)
	s.ErrorIs(err, sentinel.ErrConflict, "fresh lease must survive the stale release")
	s.NoError(fresh(ctx))
}
