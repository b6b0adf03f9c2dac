// Package dynamo provides the core primitives shared by the path-tracking
// controller and the closed-loop simulator:
//
//   - [State]: fixed-size vehicle-frame state (x, y, psi, v, cte, epsi)
//   - [Actuation]: physical steering angle and acceleration
//   - [Command]: normalized steering and throttle sent to actuators
//   - [Trajectory]: predicted path for visualization
//   - [System], [Integrator]: continuous plant and its stepper
//   - [Controller]: anything that turns a state and reference into a command
//
// # Thread Safety
//
// Controllers carry state across cycles and must not be shared between
// goroutines. Parallel tuning runs create one controller per run.
package dynamo
