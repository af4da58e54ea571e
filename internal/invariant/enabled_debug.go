//go:build tilestreamdebug

package invariant

const enabled = true
