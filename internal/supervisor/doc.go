// Package supervisor owns the worker handles and keeps the workers alive.
//
// On every period the supervisor samples memory, then asks each handle for
// its liveness. A worker whose heartbeat is older than the stuck threshold,
// or whose goroutine exited on its own, is destroyed and recreated from its
// spec with the same name and priority; the stored handle is replaced and
// nothing from the old incarnation carries over. An optional restart guard
// stops recreation once a worker exhausts its budget inside a sliding
// window. Workers never see their handles.
package supervisor
