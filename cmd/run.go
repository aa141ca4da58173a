package cmd

import (
	"fmt"
	"math"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gopwld/diffusion"
	"github.com/notargets/gopwld/keigen"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Solve the fixed source or k-eigenvalue problem of an input file",
	Run: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("profile") {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		p, err := LoadProblem(viper.GetString("inputConditionsFile"))
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			return
		}
		p.Input.Print()
		if _, err = RunProblem(p); err != nil {
			fmt.Printf("error: %s\n", err.Error())
		}
	},
}

func init() {
	rootCmd.AddCommand(RunCmd)
}

type Summary struct {
	GlobalDOFs     int
	PhiMin, PhiMax float64
	K              float64 // zero for fixed source problems
	Iterations     int
}

func RunProblem(p *Problem) (sum *Summary, err error) {
	sum = &Summary{}
	err = p.runRanks(func(s *diffusion.Solver) error {
		c := s.Comm
		if p.Input.KEigen {
			o := p.Input.KEigenOptions()
			o.Verbose = p.Verbose
			res, err := keigen.Solve(s, o)
			if err != nil {
				return err
			}
			if c.Rank() == 0 {
				sum.K, sum.Iterations = res.K, res.Iterations
			}
			c.Log("k_eff = %.8f after %d iterations", res.K, res.Iterations)
		} else if err := s.Solve(); err != nil {
			return err
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range s.Phi() {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		negLo, err := c.AllReduceMaxFloat(-lo)
		if err != nil {
			return err
		}
		if hi, err = c.AllReduceMaxFloat(hi); err != nil {
			return err
		}
		c.Log("phi in [%.6e, %.6e], %d unknowns", -negLo, hi, s.GlobalDOFCount)
		if c.Rank() == 0 {
			sum.PhiMin, sum.PhiMax, sum.GlobalDOFs = -negLo, hi, s.GlobalDOFCount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return
}
