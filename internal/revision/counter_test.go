package revision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// mockRevisionRepo はRevisionRepositoryのテスト用モック。
// インメモリのアトミックカウンタで永続層を模倣する。
type mockRevisionRepo struct {
	value         atomic.Int64
	currentFunc   func(ctx context.Context) (int64, error)
	incrementFunc func(ctx context.Context) (int64, error)
}

func (m *mockRevisionRepo) Current(ctx context.Context) (int64, error) {
	if m.currentFunc != nil {
		return m.currentFunc(ctx)
	}
	return m.value.Load(), nil
}

func (m *mockRevisionRepo) Increment(ctx context.Context) (int64, error) {
	if m.incrementFunc != nil {
		return m.incrementFunc(ctx)
	}
	return m.value.Add(1), nil
}

func TestLoad_ReadsPersistedValue(t *testing.T) {
	repo := &mockRevisionRepo{}
	repo.value.Store(42)

	c, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if c.Read() != 42 {
		t.Errorf("Read() = %d, want 42", c.Read())
	}
}

func TestLoad_PropagatesError(t *testing.T) {
	repo := &mockRevisionRepo{
		currentFunc: func(ctx context.Context) (int64, error) {
			return 0, errors.New("db down")
		},
	}

	if _, err := Load(context.Background(), repo); err == nil {
		t.Fatal("永続層の失敗でエラーが返るべき")
	}
}

func TestCounter_Bump_StrictlyIncreasing(t *testing.T) {
	repo := &mockRevisionRepo{}
	c, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var prev int64
	for i := 0; i < 100; i++ {
		v, err := c.Bump(context.Background())
		if err != nil {
			t.Fatalf("bump %d: expected no error, got %v", i, err)
		}
		if v <= prev {
			t.Fatalf("bump %d: value = %d, 厳密に増加すべき (prev = %d)", i, v, prev)
		}
		prev = v
	}
}

func TestCounter_Bump_PropagatesError(t *testing.T) {
	repo := &mockRevisionRepo{
		incrementFunc: func(ctx context.Context) (int64, error) {
			return 0, errors.New("tx aborted")
		},
	}
	c, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := c.Bump(context.Background()); err == nil {
		t.Fatal("インクリメント失敗でエラーが返るべき")
	}
}

// 並行するBumpと読み取りの下で、Readが減少した値を返さないこと。
func TestCounter_ConcurrentBumpsNeverDecreaseRead(t *testing.T) {
	repo := &mockRevisionRepo{}
	c, err := Load(context.Background(), repo)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stop := make(chan struct{})
	var decreased atomic.Bool

	go func() {
		var prev int64
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := c.Read()
			if v < prev {
				decreased.Store(true)
				return
			}
			prev = v
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := c.Bump(context.Background()); err != nil {
					t.Errorf("bump failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)

	if decreased.Load() {
		t.Error("Readが減少した値を返した")
	}
	if c.Read() != 800 {
		t.Errorf("Read() = %d, want 800", c.Read())
	}
}
