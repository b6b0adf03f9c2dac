// Package control provides baseline path-tracking controllers to compare
// against the MPC tracker.
//
// Controllers implement the [dynamo.Controller] interface, mapping the
// vehicle-frame state and reference polynomial to a normalized command:
//
//   - [Lateral]: PID on cross-track error plus heading feedback, PID on speed
//   - [LQR]: static gain feedback on (cte, epsi, speed error)
//   - [None]: coast (zero command)
//
// # Usage
//
//	ctrl := control.NewLateral(15, 0.1) // target speed, sample time
//	cmd, err := ctrl.Compute(state, coeffs)
//
// Controllers implementing [dynamo.Configurable] support live tuning.
package control
