// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package health

// NewAlertLogForTest exposes the alert ring so its wrap-around behavior can
// be tested without driving full monitor cycles.
var NewAlertLogForTest = newAlertLog
