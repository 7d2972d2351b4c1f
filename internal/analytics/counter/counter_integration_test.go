//go:build integration

package counter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/bulletdrop/analytics/internal/analytics/counter"
	"github.com/bulletdrop/analytics/internal/analytics/models"
	"github.com/bulletdrop/analytics/pkg/testutil/containers"
)

type RedisCounterSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	counter *counter.Redis
}

func TestRedisCounterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCounterSuite))
}

func (s *RedisCounterSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.counter = counter.NewRedis(s.redis.Client)
}

func (s *RedisCounterSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCounterSuite) TestIncrementAndDrain() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.counter.Increment(ctx, models.ContentFile, 42))
	}
	s.Require().NoError(s.counter.Increment(ctx, models.ContentProfile, 7))

	counts, err := s.counter.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(map[counter.Key]int64{
		{ContentType: models.ContentFile, ContentID: 42}:   3,
		{ContentType: models.ContentProfile, ContentID: 7}: 1,
	}, counts)

	// Drain resets the buffer.
	counts, err = s.counter.Drain(ctx)
	s.Require().NoError(err)
	s.Empty(counts)
}

func (s *RedisCounterSuite) TestDrainIgnoresForeignKeys() {
	ctx := context.Background()

	s.Require().NoError(s.redis.Client.Set(ctx, "ratelimit:blocked:203.0.113.9", "abuse", 0).Err())
	s.Require().NoError(s.redis.Client.Set(ctx, "views:file:not-a-number", "5", 0).Err())
	s.Require().NoError(s.counter.Increment(ctx, models.ContentFile, 1))

	counts, err := s.counter.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(map[counter.Key]int64{
		{ContentType: models.ContentFile, ContentID: 1}: 1,
	}, counts)

	// Foreign keys are left alone.
	s.Require().NoError(s.redis.Client.Get(ctx, "ratelimit:blocked:203.0.113.9").Err())
}

func (s *RedisCounterSuite) TestConcurrentIncrements() {
	ctx := context.Background()

	const goroutines = 10
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_ = s.counter.Increment(ctx, models.ContentFile, 99)
			}
		}()
	}
	wg.Wait()

	counts, err := s.counter.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(int64(goroutines*perGoroutine), counts[counter.Key{ContentType: models.ContentFile, ContentID: 99}])
}
