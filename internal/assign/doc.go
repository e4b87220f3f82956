// Package assign implements round-robin agent selection over the active
// roster. Next serves brand-new conversations and persists the shared cursor
// with compare-and-set semantics; After serves timeout reassignment and
// deliberately leaves the cursor alone. Regional eligibility comes from the
// hours package, failing open when no region is active.
package assign
