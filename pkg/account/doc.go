// Package account defines the account security record and the stores that persist it.
//
// Three Repository implementations are provided: InMemoryRepository for tests and single-process
// use, PostgresRepository on the accounts table from migrations/account.sql, and RedisRepository.
// All of them implement Save as a compare-and-set on Account.Version, so concurrent
// read-modify-write cycles on the same account cannot silently overwrite each other.
package account
