package netio

import (
	"errors"
	"testing"
	"time"

	"manifest-watch/internal/alerterr"
)

func TestPool_ExecuteReturnsResult(t *testing.T) {
	pool := NewPool(1, 4)
	defer pool.Shutdown()

	got, err := pool.Execute(func() (interface{}, error) {
		return "loaded", nil
	}, time.Second, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got != "loaded" {
		t.Fatalf("expected loaded, got %v", got)
	}
	if stats := pool.Stats(); stats.ExecutedTotal != 1 {
		t.Fatalf("executed total expected 1, got %d", stats.ExecutedTotal)
	}
}

func TestPool_ExecutePropagatesLoadError(t *testing.T) {
	pool := NewPool(1, 4)
	defer pool.Shutdown()

	wantErr := errors.New("share offline")
	_, err := pool.Execute(func() (interface{}, error) {
		return nil, wantErr
	}, time.Second, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected load error, got: %v", err)
	}
}

func TestPool_TimeoutAbandonsButDeliversLate(t *testing.T) {
	pool := NewPool(1, 4)
	defer pool.Shutdown()

	lateCh := make(chan interface{}, 1)
	release := make(chan struct{})

	_, err := pool.Execute(func() (interface{}, error) {
		<-release
		return "late-value", nil
	}, 20*time.Millisecond, func(value interface{}, err error) {
		lateCh <- value
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, alerterr.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got: %v", err)
	}
	if stats := pool.Stats(); stats.TimeoutTotal != 1 {
		t.Fatalf("timeout total expected 1, got %d", stats.TimeoutTotal)
	}

	close(release)
	select {
	case got := <-lateCh:
		if got != "late-value" {
			t.Fatalf("expected late-value, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("late result was never delivered")
	}
}

func TestPool_FullQueueRejectsImmediately(t *testing.T) {
	pool := NewPool(1, 1)
	defer pool.Shutdown()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})

	// 第一个任务占住唯一协程
	go func() {
		_, _ = pool.Execute(func() (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, time.Second, nil)
	}()
	<-started

	// 第二个任务占满队列
	go func() {
		_, _ = pool.Execute(func() (interface{}, error) {
			<-release
			return nil, nil
		}, time.Second, nil)
	}()
	deadline := time.Now().Add(time.Second)
	for pool.Stats().Pending == 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue never filled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := pool.Execute(func() (interface{}, error) { return nil, nil }, time.Second, nil)
	if !errors.Is(err, alerterr.ErrStorageUnavailable) {
		t.Fatalf("expected queue-full rejection, got: %v", err)
	}
}
