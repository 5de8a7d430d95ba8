package installconf

// Template is written by "compinst init".
const Template = `version: 1
install_dir: ./server
# environment: [production]
# jobs: 2

repositories:
  - name: releases
    kind: maven
    url: https://repo.example.com/releases
    # username: ${REPO_USER}
    # password: ${REPO_PASSWORD}
    verify_checksums: true

components:
  - dependency: com.example:shop:1.0.+
    path: shop
    post_install: [announce]

filters:
  - name: environment
    includes: ["**/*.properties"]
    properties:
      environment: production

hooks:
  announce:
    desc: print the installed components
    run: ls -1 ./server
`
