package tdvp

import (
	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/tdvp/krylov"
	"github.com/fumin/tdvp/mps"
)

// LocalInfo reports the diagnostics of a SolveLocal call.
type LocalInfo struct {
	// Converged is true when the partial steps sum exactly to the
	// requested time.
	Converged bool
	// Norm is the norm of the result before renormalization.
	Norm float64
	// Iterations and Matvecs are summed over partial steps.
	Iterations int
	Matvecs    int
	// Steps are the successive partial times integrated.
	// Each entry is an exact complex128 difference of two complex64
	// residuals, so the entries sum to the requested time exactly.
	Steps []complex128
	// Errs are the error estimates of the partial steps.
	Errs []float64
}

// SolveLocal computes exp(dt*A)*x normalized to unit norm, where the
// linear map A is given by its action.
// The integrator may integrate only part of dt; SolveLocal restarts it
// on the unintegrated residual until the residual is exactly zero, so
// that the partial steps sum exactly to dt.
func SolveLocal(action func(y, x *tensor.Dense), dt complex64, x *tensor.Dense, options ...SweepOptions) (*tensor.Dense, LocalInfo, error) {
	opt := NewSweepOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if opt.integrator == nil {
		opt.integrator = krylov.ExpMV
	}
	if opt.maxRestarts <= 0 {
		opt.maxRestarts = 32
	}

	linfo := LocalInfo{}
	cur := x
	remaining := dt
	for restarts := 0; ; restarts++ {
		y, info, err := opt.integrator(action, remaining, cur, opt.krylov)
		if err != nil {
			return nil, linfo, errors.Wrap(err, "")
		}
		cur = y
		linfo.Iterations += info.Iterations
		linfo.Matvecs += info.Matvecs
		linfo.Steps = append(linfo.Steps, complex128(remaining)-complex128(info.Residual))
		linfo.Errs = append(linfo.Errs, info.Err)
		if info.Residual == 0 {
			break
		}
		remaining = info.Residual
		if restarts+1 >= opt.maxRestarts {
			return nil, linfo, errors.Errorf("residual %f after %d restarts", remaining, restarts+1)
		}
	}
	linfo.Converged = true

	linfo.Norm = mps.Norm(cur)
	if linfo.Norm < 1e-30 {
		return nil, linfo, errors.Errorf("vanishing norm %g", linfo.Norm)
	}
	cur.Mul(complex(float32(1/linfo.Norm), 0))
	return cur, linfo, nil
}
