// Package binder moves PCI devices between kernel drivers through sysfs.
//
// Binding walks a device from its current driver to the passthrough driver:
//
//	Bound(driver) -> Unbound -> OverrideSet(vfio-pci) -> Bound(vfio-pci)
//
// and Unbind walks it back:
//
//	Bound(vfio-pci) -> Unbound -> OverrideCleared -> Reprobed -> Bound(kernel default)
//
// Every operation first builds a Plan of control-file writes. A dry run
// returns the plan without touching the host; otherwise the plan is executed
// in order and Plan.Applied tells how far it got, so callers can record a
// half-finished rebinding for rollback.
package binder
