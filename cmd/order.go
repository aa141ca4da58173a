package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gopwld/comm"
	"github.com/notargets/gopwld/pwl"
)

// OrderCmd represents the order command
var OrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Number the unknowns across ranks and report the matrix preallocation",
	Run: func(cmd *cobra.Command, args []string) {
		p, err := LoadProblem(viper.GetString("inputConditionsFile"))
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			return
		}
		reports, err := OrderProblem(p)
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			return
		}
		fmt.Printf("%6s %8s %10s %10s %10s %8s\n", "Rank", "Cells", "Offset", "DOFs", "NNZ", "OffDiag")
		for _, r := range reports {
			fmt.Printf("%6d %8d %10d %10d %10d %8d\n",
				r.Rank, r.Cells, r.RankOffset, r.LocalDOFs, r.NNZDiag+r.NNZOff, r.NNZOff)
		}
		fmt.Printf("%d unknowns in total\n", reports[0].GlobalDOFs)
	},
}

func init() {
	rootCmd.AddCommand(OrderCmd)
}

type OrderReport struct {
	Rank, Cells, Ghosts   int
	NeighborViews         int
	LocalDOFs, GlobalDOFs int
	RankOffset            int
	NNZDiag, NNZOff       int
}

// OrderProblem runs the cell precompute, node ordering and sparsity
// pattern on every rank.
func OrderProblem(p *Problem) ([]OrderReport, error) {
	reports := make([]OrderReport, p.Ranks)
	err := comm.Run(p.Ranks, func(c *comm.Comm) error {
		d := pwl.New(p.Parts[c.Rank()])
		if err := d.PreComputeCellSDValues(); err != nil {
			return err
		}
		if err := d.PreComputeNeighborCellSDValues(); err != nil {
			return err
		}
		if err := c.Barrier(); err != nil {
			return err
		}
		local, global, err := d.OrderNodes(c)
		if err != nil {
			return err
		}
		nnzDiag, nnzOff, err := d.BuildSparsityPattern(nil)
		if err != nil {
			return err
		}
		o, err := d.Ordering()
		if err != nil {
			return err
		}
		r := OrderReport{
			Rank:          c.Rank(),
			Cells:         d.NumLocalCells(),
			Ghosts:        len(o.Ghosts),
			NeighborViews: d.NumNeighborViews(),
			LocalDOFs:     local,
			GlobalDOFs:    global,
			RankOffset:    o.RankOffset,
		}
		for i := range nnzDiag {
			r.NNZDiag += nnzDiag[i]
			r.NNZOff += nnzOff[i]
		}
		if p.Verbose {
			c.LogAll("%d cells, %d ghosts, %d unknowns from %d", r.Cells, r.Ghosts, local, r.RankOffset)
		}
		reports[c.Rank()] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}
