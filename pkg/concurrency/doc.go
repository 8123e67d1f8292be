/*
Package concurrency provides advanced concurrency primitives with observability.

Features:
  - SmartMutex / SmartRWMutex: Deadlock detection and slow lock logging
  - WorkerPool: Bounded-concurrency goroutine pool
  - SafeGo: Panic-recovering background goroutine launch
*/
package concurrency
