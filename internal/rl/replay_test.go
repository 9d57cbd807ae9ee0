package rl

import (
	"math/rand"
	"sync"
	"testing"
)

func TestReplayRingEviction(t *testing.T) {
	buf, err := NewReplayBuffer(5)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}

	for i := 0; i < 8; i++ {
		buf.Add(Transition{Reward: float64(i)})
	}
	if buf.Len() != 5 {
		t.Fatalf("len = %d, want 5", buf.Len())
	}

	// only rewards 3..7 survive
	rng := rand.New(rand.NewSource(1))
	sample, err := buf.Sample(rng, 5)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for _, tr := range sample {
		if tr.Reward < 3 || tr.Reward > 7 {
			t.Errorf("sampled evicted transition with reward %f", tr.Reward)
		}
	}
}

func TestReplaySampleSize(t *testing.T) {
	buf, _ := NewReplayBuffer(10)
	for i := 0; i < 4; i++ {
		buf.Add(Transition{Reward: float64(i)})
	}

	rng := rand.New(rand.NewSource(2))
	sample, err := buf.Sample(rng, 4)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(sample) != 4 {
		t.Errorf("sample size %d, want 4", len(sample))
	}

	if _, err := buf.Sample(rng, 5); err == nil {
		t.Error("oversized batch accepted")
	}
	if _, err := buf.Sample(rng, 0); err == nil {
		t.Error("zero batch accepted")
	}
}

func TestReplayBadCapacity(t *testing.T) {
	if _, err := NewReplayBuffer(0); err == nil {
		t.Error("zero capacity accepted")
	}
}

func TestReplayConcurrentAdds(t *testing.T) {
	buf, _ := NewReplayBuffer(1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf.Add(Transition{Reward: 1})
			}
		}()
	}
	wg.Wait()

	if buf.Len() != 1000 {
		t.Errorf("len = %d after 1600 adds into capacity 1000", buf.Len())
	}
}

func TestNoiseSchedules(t *testing.T) {
	g := NewGaussianNoise(1.0, 0.1, 0.5)
	g.Episode()
	g.Episode()
	if g.Sigma != 0.25 {
		t.Errorf("sigma = %f after two decays, want 0.25", g.Sigma)
	}
	for i := 0; i < 10; i++ {
		g.Episode()
	}
	if g.Sigma != 0.1 {
		t.Errorf("sigma = %f, want the 0.1 floor", g.Sigma)
	}

	ou := NewOUNoise(0.2)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		ou.Sample(rng)
	}
	if ou.state == 0 {
		t.Error("OU state should wander from zero")
	}
	ou.Episode()
	if ou.state != 0 {
		t.Error("OU state should reset at episode boundaries")
	}
}
