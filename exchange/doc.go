// Package exchange defines the unit of work that flows through StreamKit.
//
// An Exchange carries a Message (body and headers), free-form properties, an
// exception slot and a UnitOfWork. The UnitOfWork is where resources tied to
// the exchange are released: a stream cache spooled to disk registers an
// on-completion hook there, and the hook runs exactly once when Done is
// called, whether the exchange succeeded or failed.
//
// Whoever creates an exchange owns calling Done on it. The batch consumer
// calls it after the processor (and the acknowledgement) finished; Multicast
// calls it on every copy it creates.
package exchange
