package model

import "strings"

// Packaging is a Maven packaging id as declared in a POM's <packaging> element.
// The zero value means unknown.
type Packaging string

// Known packaging ids.
const (
	PackagingUnknown              Packaging = ""
	PackagingEAR                  Packaging = "ear"
	PackagingJAR                  Packaging = "jar"
	PackagingPOM                  Packaging = "pom"
	PackagingRAR                  Packaging = "rar"
	PackagingWAR                  Packaging = "war"
	PackagingZIP                  Packaging = "zip"
	PackagingAMI                  Packaging = "ami"
	PackagingAPK                  Packaging = "apk"
	PackagingAPKLib               Packaging = "apklib"
	PackagingAtlassianPlugin      Packaging = "atlassian-plugin"
	PackagingAWS                  Packaging = "aws"
	PackagingBundle               Packaging = "bundle"
	PackagingDistributionBaseZip  Packaging = "distribution-base-zip"
	PackagingDistributionFragment Packaging = "distribution-fragment"
	PackagingEclipsePlugin        Packaging = "eclipse-plugin"
	PackagingEclipseRepository    Packaging = "eclipse-repository"
	PackagingEJB                  Packaging = "ejb"
	PackagingGlassfishJAR         Packaging = "glassfish-jar"
	PackagingHK2JAR               Packaging = "hk2-jar"
	PackagingHPI                  Packaging = "hpi"
	PackagingJavaSource           Packaging = "java-source"
	PackagingJBossSAR             Packaging = "jboss-sar"
	PackagingJDocBook             Packaging = "jdocbook"
	PackagingJenkinsModule        Packaging = "jenkins-module"
	PackagingMavenPlugin          Packaging = "maven-plugin"
	PackagingOSGiBundle           Packaging = "osgi-bundle"
	PackagingStaplerJAR           Packaging = "stapler-jar"
	PackagingSWC                  Packaging = "swc"
)

// DefaultPackaging applies when a POM declares no packaging.
const DefaultPackaging = PackagingJAR

// extensions lists the file extension of every known packaging. Packagings
// not listed with their own extension ship as jars.
var extensions = map[Packaging]string{
	PackagingEAR: ".ear", PackagingJAR: ".jar", PackagingPOM: ".pom",
	PackagingRAR: ".rar", PackagingWAR: ".war", PackagingZIP: ".zip",
	PackagingAMI: ".jar", PackagingAPK: ".jar", PackagingAPKLib: ".jar",
	PackagingAtlassianPlugin: ".jar", PackagingAWS: ".jar", PackagingBundle: ".jar",
	PackagingDistributionBaseZip: ".jar", PackagingDistributionFragment: ".jar",
	PackagingEclipsePlugin: ".jar", PackagingEclipseRepository: ".jar", PackagingEJB: ".jar",
	PackagingGlassfishJAR: ".jar", PackagingHK2JAR: ".jar", PackagingHPI: ".jar",
	PackagingJavaSource: ".jar", PackagingJBossSAR: ".jar", PackagingJDocBook: ".jar",
	PackagingJenkinsModule: ".jar", PackagingMavenPlugin: ".jar", PackagingOSGiBundle: ".jar",
	PackagingStaplerJAR: ".jar", PackagingSWC: ".jar",
}

// ParsePackaging maps a declared packaging id to a known Packaging.
// An empty declaration yields DefaultPackaging; unknown ids yield PackagingUnknown.
func ParsePackaging(s string) Packaging {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPackaging
	}
	p := Packaging(s)
	if _, ok := extensions[p]; ok {
		return p
	}
	return PackagingUnknown
}

// Known reports whether p is one of the known packaging ids.
func (p Packaging) Known() bool {
	_, ok := extensions[p]
	return ok
}

// Extension returns the file extension of the packaging's main artifact,
// or "" for an unknown packaging.
func (p Packaging) Extension() string {
	return extensions[p]
}
