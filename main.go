/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/mto-maintenance/apiserver/cmd"

func main() {
	cmd.Execute()
}
