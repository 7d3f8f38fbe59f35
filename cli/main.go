package main

import (
	"fmt"
	"os"

	"lstore"

	log "github.com/sirupsen/logrus"
)

// lstore-cli loads a small grades table, updates it and prints the
// aggregates before and after a merge. With a directory argument the
// database is opened there and snapshotted on exit.
func main() {
	log.SetLevel(log.DebugLevel)

	var db *lstore.DB
	if len(os.Args) > 1 {
		var err error
		if db, err = lstore.Open(os.Args[1], nil); err != nil {
			log.WithError(err).Fatal("open database")
		}
	} else {
		db = lstore.NewDB(nil)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("close database")
		}
	}()

	grades, ok := db.GetTable("Grades")
	if !ok {
		var err error
		if grades, err = db.CreateTable("Grades", 5, 0); err != nil {
			log.WithError(err).Fatal("create table")
		}
	}
	query := lstore.NewQuery(grades)

	for _, row := range [][]int64{
		{101, 90, 85, 88, 92},
		{102, 78, 80, 79, 75},
		{103, 95, 96, 90, 94},
	} {
		if _, err := query.Insert(lstore.Ints(row...)...); err != nil {
			log.WithError(err).WithField("key", row[0]).Warn("insert skipped")
		}
	}

	err := query.UpdateKey(lstore.Int(102), map[int]lstore.Value{
		1: lstore.Int(88), 2: lstore.Int(85), 3: lstore.Int(80), 4: lstore.Int(78),
	})
	if err != nil {
		log.WithError(err).Fatal("update")
	}

	fmt.Printf("sum of column 1 for 101..103: %d\n", query.Sum(101, 103, 1))
	fmt.Printf("sum of column 1 one version back: %d\n", query.SumVersion(101, 103, 1, lstore.Relative(-1)))

	stats := grades.Merge()
	fmt.Printf("merged %d records, froze %d pages\n", stats.Records, stats.Frozen)
	fmt.Printf("sum of column 1 after merge: %d\n", query.Sum(101, 103, 1))
	fmt.Printf("sum of column 1 one version back after merge: %d\n", query.SumVersion(101, 103, 1, lstore.Relative(-1)))

	for _, r := range query.Select(0, lstore.Int(102), lstore.Latest) {
		fmt.Printf("record %d: %v\n", r.RID, r.Columns)
	}
}
