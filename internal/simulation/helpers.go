package simulation

import "github.com/nvandessel/bankrun/internal/constants"

// WithParams returns DefaultParams with each modifier applied in order.
func WithParams(mods ...func(*Params)) Params {
	p := DefaultParams()
	for _, mod := range mods {
		mod(&p)
	}
	return p
}

// NoNews silences the media: zero score and zero diffusion.
func NoNews(p *Params) {
	p.NewsScore = 0
	p.DiffusionRate = 0
}

// FullNews sets score, credibility and diffusion to their maximum.
func FullNews(p *Params) {
	p.NewsScore = 1
	p.NewsCredibility = 1
	p.DiffusionRate = 1
}

// OnlyCustomers removes every non-customer from the population.
func OnlyCustomers(p *Params) {
	p.NonCustomerFraction = 0
}

// Sync switches the run to snapshot reads.
func Sync(p *Params) {
	p.UpdateMode = constants.UpdateSync
}

// Nodes returns a modifier setting the network size.
func Nodes(n int) func(*Params) {
	return func(p *Params) { p.Nodes = n }
}

// Deposits returns a modifier setting total deposits.
func Deposits(total float64) func(*Params) {
	return func(p *Params) { p.TotalDeposits = total }
}
