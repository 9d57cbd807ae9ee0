package rl

import (
	"context"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// AgentConfig collects the DDPG hyperparameters.
type AgentConfig struct {
	HiddenSizes []int
	ActorLR     float64
	CriticLR    float64
	Gamma       float64
	Tau         float64
	BatchSize   int
	BufferSize  int
	WarmupSteps int // transitions collected before updates start
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		HiddenSizes: []int{64, 64},
		ActorLR:     1e-3,
		CriticLR:    1e-3,
		Gamma:       0.99,
		Tau:         0.01,
		BatchSize:   64,
		BufferSize:  100000,
		WarmupSteps: 500,
	}
}

// Agent is a DDPG learner: deterministic actor, Q critic, target copies
// of both, and a replay buffer.
type Agent struct {
	cfg AgentConfig

	actor        *MLP
	critic       *MLP
	actorTarget  *MLP
	criticTarget *MLP

	replay *ReplayBuffer
	noise  Noise
	rng    *rand.Rand

	obsDim, actDim int
	bound          float64
}

func NewAgent(env Environment, cfg AgentConfig, noise Noise, rng *rand.Rand) (*Agent, error) {
	if cfg.BatchSize <= 0 || cfg.BufferSize < cfg.BatchSize {
		return nil, fmt.Errorf("buffer %d must hold at least one batch of %d", cfg.BufferSize, cfg.BatchSize)
	}
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		return nil, fmt.Errorf("gamma must be in (0,1), got %f", cfg.Gamma)
	}
	if cfg.Tau <= 0 || cfg.Tau > 1 {
		return nil, fmt.Errorf("tau must be in (0,1], got %f", cfg.Tau)
	}

	obs, act := env.ObservationSize(), env.ActionSize()

	actorSizes := append(append([]int{obs}, cfg.HiddenSizes...), act)
	criticSizes := append(append([]int{obs + act}, cfg.HiddenSizes...), 1)

	actor, err := NewMLP(actorSizes, TanhScaled, env.ActionBound(), rng)
	if err != nil {
		return nil, fmt.Errorf("actor: %w", err)
	}
	critic, err := NewMLP(criticSizes, Linear, 0, rng)
	if err != nil {
		return nil, fmt.Errorf("critic: %w", err)
	}

	replay, err := NewReplayBuffer(cfg.BufferSize)
	if err != nil {
		return nil, err
	}

	return &Agent{
		cfg:          cfg,
		actor:        actor,
		critic:       critic,
		actorTarget:  actor.Clone(),
		criticTarget: critic.Clone(),
		replay:       replay,
		noise:        noise,
		rng:          rng,
		obsDim:       obs,
		actDim:       act,
		bound:        env.ActionBound(),
	}, nil
}

// Act returns the greedy action for an observation.
func (a *Agent) Act(obs Observation) []float64 {
	in := mat.NewDense(1, a.obsDim, append([]float64(nil), obs...))
	out := a.actor.Forward(in)
	act := make([]float64, a.actDim)
	for j := range act {
		act[j] = out.At(0, j)
	}
	return act
}

// EpisodeStat summarizes one training episode.
type EpisodeStat struct {
	Episode int
	Steps   int
	Reward  float64
}

// TrainOptions bounds a training run.
type TrainOptions struct {
	MaxEpisodes int
	MaxSteps    int     // per episode
	StopReward  float64 // stop when the moving average reaches this
	StopWindow  int     // moving-average width, 0 disables early stop
	UpdateEvery int     // environment steps between gradient updates
}

// Train runs episodes until the stop criterion or MaxEpisodes. The
// context cancels between steps.
func (a *Agent) Train(ctx context.Context, env Environment, opts TrainOptions) ([]EpisodeStat, error) {
	if opts.MaxEpisodes <= 0 || opts.MaxSteps <= 0 {
		return nil, fmt.Errorf("episode and step limits must be positive")
	}
	if opts.UpdateEvery <= 0 {
		opts.UpdateEvery = 1
	}

	stats := make([]EpisodeStat, 0, opts.MaxEpisodes)
	totalSteps := 0

	for ep := 0; ep < opts.MaxEpisodes; ep++ {
		obs := env.Reset()
		epReward := 0.0
		steps := 0

		for st := 0; st < opts.MaxSteps; st++ {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			default:
			}

			action := a.Act(obs)
			for j := range action {
				action[j] = clip(action[j]+a.noise.Sample(a.rng), -a.bound, a.bound)
			}

			res, err := env.Step(action)
			if err != nil {
				return stats, fmt.Errorf("episode %d: %w", ep, err)
			}

			a.replay.Add(Transition{
				Obs:     obs.Clone(),
				Action:  append([]float64(nil), action...),
				Reward:  res.Reward,
				NextObs: res.Obs.Clone(),
				Done:    res.Done && res.Info["cause"] != "steps",
			})

			epReward += res.Reward
			obs = res.Obs
			steps++
			totalSteps++

			if totalSteps >= a.cfg.WarmupSteps && totalSteps%opts.UpdateEvery == 0 {
				if err := a.update(); err != nil {
					return stats, err
				}
			}

			if res.Done {
				break
			}
		}

		a.noise.Episode()
		stats = append(stats, EpisodeStat{Episode: ep, Steps: steps, Reward: epReward})

		if opts.StopWindow > 0 && len(stats) >= opts.StopWindow {
			avg := 0.0
			for _, s := range stats[len(stats)-opts.StopWindow:] {
				avg += s.Reward
			}
			avg /= float64(opts.StopWindow)
			if avg >= opts.StopReward {
				break
			}
		}
	}
	return stats, nil
}

// Evaluate runs one greedy episode without noise or updates and returns
// the total reward.
func (a *Agent) Evaluate(ctx context.Context, env Environment, maxSteps int) (float64, error) {
	obs := env.Reset()
	total := 0.0
	for st := 0; st < maxSteps; st++ {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		res, err := env.Step(a.Act(obs))
		if err != nil {
			return total, err
		}
		total += res.Reward
		obs = res.Obs
		if res.Done {
			break
		}
	}
	return total, nil
}

// update performs one DDPG gradient step from a replay mini-batch.
func (a *Agent) update() error {
	if a.replay.Len() < a.cfg.BatchSize {
		return nil
	}
	batch, err := a.replay.Sample(a.rng, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	b := len(batch)

	obs := mat.NewDense(b, a.obsDim, nil)
	next := mat.NewDense(b, a.obsDim, nil)
	for i, tr := range batch {
		obs.SetRow(i, tr.Obs)
		next.SetRow(i, tr.NextObs)
	}

	// Bellman targets from the target networks
	nextAct := a.actorTarget.Forward(next)
	nextQ := a.criticTarget.Forward(joinCols(next, nextAct))

	y := make([]float64, b)
	for i, tr := range batch {
		y[i] = tr.Reward
		if !tr.Done {
			y[i] += a.cfg.Gamma * nextQ.At(i, 0)
		}
	}

	// critic MSE step
	qin := mat.NewDense(b, a.obsDim+a.actDim, nil)
	for i, tr := range batch {
		for j := 0; j < a.obsDim; j++ {
			qin.Set(i, j, tr.Obs[j])
		}
		for j := 0; j < a.actDim; j++ {
			qin.Set(i, a.obsDim+j, tr.Action[j])
		}
	}
	q := a.critic.Forward(qin)

	gq := mat.NewDense(b, 1, nil)
	for i := 0; i < b; i++ {
		gq.Set(i, 0, 2*(q.At(i, 0)-y[i])/float64(b))
	}
	a.critic.Backward(gq)
	a.critic.Adam(a.cfg.CriticLR)

	// actor ascent through the critic
	act := a.actor.Forward(obs)
	a.critic.Forward(joinCols(obs, act)) // refresh caches for the input gradient

	ones := mat.NewDense(b, 1, nil)
	for i := 0; i < b; i++ {
		ones.Set(i, 0, -1.0/float64(b)) // maximize Q
	}
	gin := a.critic.Backward(ones) // b x (obs+act); critic params untouched without Adam
	gact := mat.NewDense(b, a.actDim, nil)
	for i := 0; i < b; i++ {
		for j := 0; j < a.actDim; j++ {
			gact.Set(i, j, gin.At(i, a.obsDim+j))
		}
	}
	a.actor.Backward(gact)
	a.actor.Adam(a.cfg.ActorLR)

	if err := a.actorTarget.SoftUpdate(a.actor, a.cfg.Tau); err != nil {
		return err
	}
	return a.criticTarget.SoftUpdate(a.critic, a.cfg.Tau)
}

// Checkpoint carries the serialized actor and critic.
type Checkpoint struct {
	Actor  *MLP `json:"actor"`
	Critic *MLP `json:"critic"`
}

// Snapshot returns the current networks for persistence.
func (a *Agent) Snapshot() Checkpoint {
	return Checkpoint{Actor: a.actor, Critic: a.critic}
}

// Restore replaces the online and target networks from a checkpoint.
func (a *Agent) Restore(ck Checkpoint) error {
	if ck.Actor == nil || ck.Critic == nil {
		return fmt.Errorf("checkpoint missing networks")
	}
	a.actor = ck.Actor
	a.critic = ck.Critic
	a.actorTarget = ck.Actor.Clone()
	a.criticTarget = ck.Critic.Clone()
	return nil
}

// joinCols concatenates two row-aligned matrices side by side.
func joinCols(a, b *mat.Dense) *mat.Dense {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb {
		panic("joinCols: row mismatch")
	}
	out := mat.NewDense(ra, ca+cb, nil)
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			out.Set(i, j, a.At(i, j))
		}
		for j := 0; j < cb; j++ {
			out.Set(i, ca+j, b.At(i, j))
		}
	}
	return out
}
