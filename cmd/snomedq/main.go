// SNOMED CT query engine command line utility
//
// Copyright 2018 Mark Wardle / Eldrix Ltd
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
//
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/wardle/snomedq/engine"
	"github.com/wardle/snomedq/snomed"
)

// automatically populated by linker flags
var version string
var build string

var doVersion = flag.Bool("version", false, "Show version information")
var database = flag.String("db", "", "directory of database to open or create")
var doBuild = flag.Bool("build", false, "(re)build the relationship/refset/search indices from the store's current contents")
var query = flag.String("ecl", "", "an ECL expression constraint to compile and run")
var lang = flag.String("lang", "en-GB", "dialect alias whose language refset picks preferred terms during -build")
var readOnly = flag.Bool("ro", true, "open the database read-only (ignored with -build, which always opens read-write)")

func main() {
	flag.Parse()
	if *doVersion {
		fmt.Printf("%s v%s (%s)\n", os.Args[0], version, build)
		os.Exit(0)
	}
	if *database == "" {
		fmt.Fprint(os.Stderr, "error: missing mandatory -db directory\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := engine.Config{
		ReadOnly:             *readOnly && !*doBuild,
		LanguagePriorityList: []string{*lang},
	}
	e, err := engine.Open(*database, cfg)
	if err != nil {
		log.Fatalf("couldn't open database: %v", err)
	}
	defer e.Close()

	if *doBuild {
		if err := e.Build(context.Background(), nil); err != nil {
			log.Fatalf("build failed: %v", err)
		}
	}

	if *query != "" {
		ids, err := e.Query(*query)
		if err != nil {
			log.Fatalf("query failed: %v", err)
		}
		for _, id := range ids {
			fmt.Println(formatConceptID(id))
		}
	}
}

func formatConceptID(id snomed.ConceptID) string {
	return fmt.Sprintf("%d", id)
}
