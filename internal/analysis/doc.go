// Package analysis characterizes recorded runs in the frequency domain.
//
// A controller that tracks well but weaves around the reference shows a
// clear peak in the spectrum of its cross-track error or steering:
//
//	w := analysis.AnalyzeWeave(cte, dt)
//	fmt.Printf("weaving at %.2f Hz, %.3f m rms\n", w.Frequency, w.Amplitude)
package analysis
