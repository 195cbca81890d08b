// Package monitoring reads the monitoring platform: its systems become sites
// and its inverter, module and string layout becomes equipment.
//
// Every call goes through a gateway.Gateway configured with the platform
// quotas (90 calls per minute and 10 000 per day by default).
package monitoring
