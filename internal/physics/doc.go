// Package physics provides the plant models used by the experiment
// harness.
//
// Each model implements the [sim.Dynamics] interface, defining the
// differential equations governing the plant's evolution:
//
//   - [CartPole]: pendulum on a cart, force input, theta = 0 upright
//   - [Pendulum]: simple pendulum with torque input
//   - [SecondOrder]: linear SISO plant 1/(s^2 + a1*s + a0)
//
// Derivative functions are pure: all friction terms are viscous, so the
// dynamics are smooth everywhere and safe to linearize at any operating
// point. Models also implement [sim.Configurable] for parameter sweeps
// and, where meaningful, [sim.EnergyComputer] for drift monitoring.
package physics
