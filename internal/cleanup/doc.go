// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package cleanup purges inert tokens on a schedule.
//
// Two sweeps run on independent tickers: the expired sweep deletes every
// token past its expiry, and the stale sweep deletes inactive tokens whose
// last update is older than the retention window. Both are predicate
// deletes over rows no request can use any more, so they are safe to run
// alongside normal traffic. ForceCleanup runs both at once with the shorter
// forced retention for operator use.
package cleanup
